package packs

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	joinsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "packride_joins_total",
		Help: "Pack join attempts by outcome.",
	}, []string{"result"})

	leavesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "packride_leaves_total",
		Help: "Completed pack leaves.",
	})

	dissolutionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "packride_auto_dissolutions_total",
		Help: "Packs cancelled because the last active member left.",
	})

	locationUpsertsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "packride_location_upserts_total",
		Help: "Location share writes.",
	})

	locationSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "packride_location_swept_total",
		Help: "Expired location shares reclaimed by the sweeper.",
	})

	liveShares = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "packride_location_shares",
		Help: "Location share entries currently held, live or awaiting sweep.",
	})
)

const (
	joinResultOK            = "ok"
	joinResultFull          = "full"
	joinResultAlreadyMember = "already_member"
	joinResultForbidden     = "forbidden"
	joinResultRejected      = "rejected"
)

func joinResult(err error) string {
	switch {
	case err == nil:
		return joinResultOK
	case errors.Is(err, ErrFull):
		return joinResultFull
	case errors.Is(err, ErrAlreadyMember):
		return joinResultAlreadyMember
	case errors.Is(err, ErrForbidden):
		return joinResultForbidden
	default:
		return joinResultRejected
	}
}
