package scheduling

import (
	"github.com/rs/zerolog"

	"github.com/carebridge/scheduling/internal/config"
	redisclient "github.com/carebridge/scheduling/internal/redis"
)

// Service implements the scheduling core: availability publishing, booking,
// the guardian authorization graph, and the merged display view. It holds no
// mutable state between requests; everything durable lives behind Repository.
type Service struct {
	repo   Repository
	locker redisclient.Locker
	cfg    config.Config
	log    zerolog.Logger
}

func NewService(repo Repository, locker redisclient.Locker, cfg config.Config, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		cfg:    cfg,
		log:    log,
	}
}
