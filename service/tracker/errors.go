package tracker

import (
	"errors"

	"github.com/viant/shmcache/model"
	"github.com/viant/shmcache/service/allocator"
	"github.com/viant/shmcache/service/registry"
)

var errNotFound = errors.New("entry not found")

func codeOf(err error) model.Code {
	switch {
	case err == nil:
		return model.CodeOK
	case errors.Is(err, registry.ErrAlreadyExists):
		return model.CodeDuplicateName
	case errors.Is(err, errNotFound):
		return model.CodeNotFound
	case errors.Is(err, allocator.ErrLimitExceeded):
		return model.CodeLimitExceeded
	case errors.Is(err, allocator.ErrInsufficientSpace):
		return model.CodeInsufficientSpace
	default:
		return model.CodeInternal
	}
}
