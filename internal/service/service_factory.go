package service

import (
	"go.uber.org/zap"

	redisrepo "github.com/coinmaksim2021-prog/auc-mob/internal/repository/redis"
	"github.com/coinmaksim2021-prog/auc-mob/internal/repository/scylla"
)

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	userRepo    scylla.UserRepository
	cache       *redisrepo.UserCache
	events      *EventRecorder
	logger      *zap.Logger
	userService *UserService
}

// NewServiceFactory creates a new service factory. cache and events may be
// nil when the corresponding backends are disabled.
func NewServiceFactory(
	userRepo scylla.UserRepository,
	cache *redisrepo.UserCache,
	events *EventRecorder,
	logger *zap.Logger,
) *ServiceFactory {
	return &ServiceFactory{
		userRepo: userRepo,
		cache:    cache,
		events:   events,
		logger:   logger,
	}
}

// UserService returns the user service instance (singleton)
func (f *ServiceFactory) UserService() *UserService {
	if f.userService == nil {
		f.userService = NewUserService(
			f.userRepo,
			f.cache,
			f.events,
			f.logger,
		)
	}
	return f.userService
}
