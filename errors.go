package accessguard

import "errors"

var (
	// ErrRedisRequired is returned by Build when no Redis client was
	// provided.
	ErrRedisRequired = errors.New("redis client required")
	// ErrRoleStoreRequired is returned by Build when no role/grant store
	// was provided.
	ErrRoleStoreRequired = errors.New("role store required")
	// ErrBuilderReused is returned when Build is called twice on the same
	// builder.
	ErrBuilderReused = errors.New("builder already used")
)
