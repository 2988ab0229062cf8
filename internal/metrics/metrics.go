// Package metrics - коллекторы prometheus клиентского ядра.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LikeToggles - переключения лайков по исходу: committed | failed | not_found.
	LikeToggles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feed",
		Name:      "like_toggles_total",
		Help:      "Like toggles by outcome.",
	}, []string{"result"})

	LikeRollbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "feed",
		Name:      "like_rollbacks_total",
		Help:      "Optimistic like updates rolled back.",
	})

	// LiveSubscriptions - открытые живые подписки по виду.
	LiveSubscriptions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "feed",
		Name:      "live_subscriptions",
		Help:      "Open live subscriptions.",
	}, []string{"kind"})

	PostMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feed",
		Name:      "post_mutations_total",
		Help:      "Post mutations by operation and outcome.",
	}, []string{"op", "result"})
)

// Result переводит ошибку в метку исхода.
func Result(err error) string {
	if err != nil {
		return "failed"
	}
	return "ok"
}
