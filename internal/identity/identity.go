// Детерминированные идентификаторы записей и доверенных сервисов,
// проверка привилегированных вызовов по спискам доверенных
package identity

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// Адрес записи и удостоверение вызывающего
type Identity uuid.UUID

// пустое удостоверение, Derive его не возвращает
var Nil Identity

// корень всех пространств имен
var root = uuid.MustParse("4d1b7c0e-5a8f-4c3e-9f2a-2e6b1d7a9c41")

// часть исходных данных для вывода
type Seed []byte

// Вывод идентификатора из пространства имен и упорядоченных частей.
// Каждая часть с префиксом длины: ("ab","c") и ("a","bc") не совпадают
func Derive(namespace string, seeds ...Seed) Identity {
	ns := uuid.NewSHA1(root, []byte(namespace))
	var buf bytes.Buffer
	var size [4]byte
	for _, s := range seeds {
		binary.BigEndian.PutUint32(size[:], uint32(len(s)))
		buf.Write(size[:])
		buf.Write(s)
	}
	return Identity(uuid.NewSHA1(ns, buf.Bytes()))
}

func SeedID(id Identity) Seed {
	b := make([]byte, 16)
	copy(b, id[:])
	return b
}

func SeedString(s string) Seed {
	return Seed(s)
}

func SeedInt64(v int64) Seed {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(v))
	return b
}

func SeedUint32(v uint32) Seed {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func Parse(s string) (Identity, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("invalid identity %q: %w", s, err)
	}
	return Identity(u), nil
}

func MustParse(s string) Identity {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (i Identity) String() string {
	return uuid.UUID(i).String()
}

func (i Identity) IsNil() bool {
	return i == Nil
}

func (i Identity) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

func (i *Identity) UnmarshalText(b []byte) error {
	id, err := Parse(string(b))
	if err != nil {
		return err
	}
	*i = id
	return nil
}
