package admission

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/partybox/partybox/internal/app/userqueue"
)

// CodeUserQueueLimit is returned when the user is at their manual-queue cap.
const CodeUserQueueLimit = "user_queue_limit"

// UserLimitConfig represents the configuration for UserLimitFilter.
type UserLimitConfig struct {
	LimitPerUser int `yaml:"limit_per_user" mapstructure:"limit_per_user" default:"0" validate:"gte=0"`
}

// UserLimitFilter rejects additions from users who already have their
// maximum number of manually-queued tracks waiting. A limit of 0 means
// unlimited.
type UserLimitFilter struct {
	limiter *userqueue.Limiter
}

// NewUserLimitFilter creates a filter backed by the manual-queue limiter.
func NewUserLimitFilter(limiter *userqueue.Limiter) *UserLimitFilter {
	return &UserLimitFilter{limiter: limiter}
}

func (f *UserLimitFilter) Name() string {
	return "user_limit_filter"
}

func (f *UserLimitFilter) Description() string {
	return "Rejects additions beyond the per-user manual queue cap"
}

func (f *UserLimitFilter) ReturnCodes() []string {
	return []string{CodeUserQueueLimit}
}

func (f *UserLimitFilter) ValidateConfig(settings map[string]any) error {
	var config UserLimitConfig

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &config,
		TagName: "mapstructure",
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(settings); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}

	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}

func (f *UserLimitFilter) Check(ctx context.Context, req Request) Result {
	limit := f.limiter.Limit()
	if limit > 0 && f.limiter.CountFor(req.Fingerprint) >= limit {
		return Reject(CodeUserQueueLimit)
	}
	return Accept()
}

func init() {
	Register("user_limit_filter", func() Filter {
		return &UserLimitFilter{limiter: userqueue.NewLimiter(0)}
	})
}
