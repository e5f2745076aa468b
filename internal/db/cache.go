package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	model "github.com/glkeru/amperequest/internal/models"
	redis "github.com/redis/go-redis/v9"
)

const balanceTTL = 5 * time.Minute

// Кэш балансов баллов
type CacheService struct {
	client *redis.Client
}

type CacheOptions struct {
	Addr     string
	Username string
	Password string
	DB       int
}

func NewCacheService(ctx context.Context, opts CacheOptions) (serv *CacheService, err error) {
	// config
	if opts.Addr == "" {
		return nil, fmt.Errorf("env AMPERE_CACHE_URL is not set")
	}
	// redis
	db := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		Username:    opts.Username,
		DB:          opts.DB,
		MaxRetries:  5,
		DialTimeout: 10 * time.Second,
	})
	err = db.Ping(ctx).Err()
	if err != nil {
		return nil, err
	}

	return &CacheService{db}, nil
}

func balanceKey(user string) string {
	return "balance:" + user
}

func (c *CacheService) GetBalance(ctx context.Context, user string) (balance model.Balance, err error) {
	val, err := c.client.Get(ctx, balanceKey(user)).Bytes()
	if err == redis.Nil {
		return balance, fmt.Errorf("balance: %w", model.ErrNotFound)
	} else if err != nil {
		return balance, err
	}

	err = json.Unmarshal(val, &balance)
	if err != nil {
		return balance, err
	}
	return balance, nil
}

func (c *CacheService) SetBalance(ctx context.Context, user string, balance model.Balance) (err error) {
	val, err := json.Marshal(balance)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, balanceKey(user), val, balanceTTL).Err()
}

func (c *CacheService) InvalidateBalance(ctx context.Context, user string) error {
	return c.client.Del(ctx, balanceKey(user)).Err()
}

func (c *CacheService) Close() error {
	return c.client.Close()
}
