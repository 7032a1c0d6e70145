package projectsync

import (
	"context"
	"sort"

	"github.com/gobwas/glob"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/traffical/traffical-go/pkg/config"
	"github.com/traffical/traffical-go/pkg/logger"
)

// Push creates and updates remote definitions from the local config. It
// keeps going after a failed item and returns the changes that were
// applied along with every error.
func Push(ctx context.Context, api API, plan *Plan) ([]Change, error) {
	if plan.ProjectID == "" {
		return nil, errors.New("config has no project id")
	}

	var (
		applied []Change
		result  *multierror.Error
	)
	for _, c := range plan.Filter(ActionCreate, ActionUpdate) {
		var err error
		switch c.Kind {
		case KindParameter:
			_, err = api.UpsertParameter(ctx, plan.ProjectID, ToPlatformParameter(c.Key, plan.local.Parameters[c.Key]))
		case KindEvent:
			_, err = api.UpsertEvent(ctx, plan.ProjectID, ToPlatformEvent(c.Key, plan.local.Events[c.Key]))
		}
		if err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "%s %s", c.Kind, c.Key))
			continue
		}
		logger.G(ctx).WithField("kind", c.Kind).WithField("key", c.Key).Debugf("pushed (%s)", c.Action)
		applied = append(applied, c)
	}
	return applied, result.ErrorOrNil()
}

// Pull returns a copy of the local config with remote-only items added and
// updated items replaced by their remote definitions.
func Pull(plan *Plan) (*config.Config, []Change) {
	return merge(plan, ActionRemoteOnly, ActionUpdate)
}

func merge(plan *Plan, actions ...Action) (*config.Config, []Change) {
	out := plan.local.Clone()
	var applied []Change
	for _, c := range plan.Filter(actions...) {
		switch c.Kind {
		case KindParameter:
			out.Parameters[c.Key] = FromPlatformParameter(plan.remote.Parameters[c.Key])
		case KindEvent:
			out.Events[c.Key] = FromPlatformEvent(plan.remote.Events[c.Key])
		}
		applied = append(applied, c)
	}
	return out, applied
}

// SyncResult reports what Sync did in each direction.
type SyncResult struct {
	Pushed []Change
	Pulled []Change
	Config *config.Config
}

// Sync pushes local creates and updates, then pulls remote-only items.
// Local definitions win conflicts. When push fails the pull still happens
// and the push error is returned.
func Sync(ctx context.Context, api API, plan *Plan) (*SyncResult, error) {
	pushed, err := Push(ctx, api, plan)
	cfg, pulled := merge(plan, ActionRemoteOnly)
	return &SyncResult{Pushed: pushed, Pulled: pulled, Config: cfg}, err
}

// PlanSync reports what Sync would do without contacting the platform.
func PlanSync(plan *Plan) *SyncResult {
	cfg, pulled := merge(plan, ActionRemoteOnly)
	return &SyncResult{
		Pushed: plan.Filter(ActionCreate, ActionUpdate),
		Pulled: pulled,
		Config: cfg,
	}
}

// Import adds remote parameters whose key matches pattern to a copy of
// cfg. Patterns are dot-separated globs: "ui.*" matches one segment,
// "checkout.**" any depth. Parameters already defined locally are left
// untouched. The added keys are returned sorted.
func Import(cfg *config.Config, remote *Remote, pattern string) (*config.Config, []string, error) {
	g, err := glob.Compile(pattern, '.')
	if err != nil {
		return nil, nil, errors.Wrapf(err, "invalid pattern %q", pattern)
	}

	out := cfg.Clone()
	var added []string
	for key, p := range remote.Parameters {
		if _, exists := out.Parameters[key]; exists || !g.Match(key) {
			continue
		}
		out.Parameters[key] = FromPlatformParameter(p)
		added = append(added, key)
	}
	sort.Strings(added)
	return out, added, nil
}
