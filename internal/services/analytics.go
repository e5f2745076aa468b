package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/glkeru/amperequest/internal/identity"
	interf "github.com/glkeru/amperequest/internal/interfaces"
	model "github.com/glkeru/amperequest/internal/models"
)

// сортировка рейтинга
const (
	RankByPoints   = "points"
	RankByEnergy   = "energy"
	RankBySessions = "sessions"
)

const maxHealthScore = 100

// Отчеты по всей сети, только чтение
type Analytics struct {
	db interf.RecordStore
}

func NewAnalytics(db interf.RecordStore) *Analytics {
	return &Analytics{db}
}

// Рейтинг пользователей
func (a *Analytics) Leaderboard(ctx context.Context, by string, limit int) ([]model.UserAccount, error) {
	var key func(model.UserAccount) uint64
	switch by {
	case RankByPoints, "":
		key = func(u model.UserAccount) uint64 { return u.TotalPoints }
	case RankByEnergy:
		key = func(u model.UserAccount) uint64 { return u.TotalEnergyKWh }
	case RankBySessions:
		key = func(u model.UserAccount) uint64 { return u.TotalSessions }
	default:
		return nil, fmt.Errorf("unknown leaderboard %q: %w", by, model.ErrInvalidInput)
	}

	users := make([]model.UserAccount, 0)
	err := a.db.Scan(ctx, model.KindUserAccount, func(_ identity.Identity, payload []byte) error {
		var u model.UserAccount
		if err := json.Unmarshal(payload, &u); err != nil {
			return err
		}
		users = append(users, u)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(users, func(i, j int) bool {
		ki, kj := key(users[i]), key(users[j])
		if ki != kj {
			return ki > kj
		}
		return bytes.Compare(users[i].Authority[:], users[j].Authority[:]) < 0
	})
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

// Статистика сети и индекс здоровья 0..100
func (a *Analytics) NetworkStats(ctx context.Context) (stats model.NetworkStats, err error) {
	users := make(map[identity.Identity]struct{})
	err = a.db.Scan(ctx, model.KindChargingSession, func(_ identity.Identity, payload []byte) error {
		var s model.ChargingSession
		if err := json.Unmarshal(payload, &s); err != nil {
			return err
		}
		stats.TotalSessions++
		if s.Active {
			stats.ActiveSessions++
		} else {
			stats.CompletedSessions++
		}
		stats.TotalEnergyWh += s.EnergyWh
		stats.TotalPoints += s.PointsEarned
		users[s.Owner] = struct{}{}
		return nil
	})
	if err != nil {
		return stats, err
	}
	stats.UniqueUsers = uint64(len(users))

	err = a.db.Scan(ctx, model.KindListing, func(_ identity.Identity, payload []byte) error {
		var l model.PointsListing
		if err := json.Unmarshal(payload, &l); err != nil {
			return err
		}
		if l.Active {
			stats.ActiveListings++
		}
		return nil
	})
	if err != nil {
		return stats, err
	}

	err = a.db.Scan(ctx, model.KindPlot, func(_ identity.Identity, payload []byte) error {
		var p model.VirtualPlot
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		stats.TotalPlots++
		if p.ChargerPowerKW > 0 {
			stats.PlotsWithChargers++
		}
		stats.TotalPlotRevenue += p.TotalRevenue
		return nil
	})
	if err != nil {
		return stats, err
	}

	stats.HealthScore = healthScore(stats)
	return stats, nil
}

func healthScore(s model.NetworkStats) uint64 {
	score := (s.TotalSessions*2 + s.UniqueUsers*5 + s.TotalPlots*3 + s.ActiveSessions*10) / 2
	if score > maxHealthScore {
		return maxHealthScore
	}
	return score
}
