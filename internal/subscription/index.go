// Package subscription maintains the durable, bidirectional mapping between
// chat channels and the repositories they follow.
//
// Each channel key stores the ordered list of linked repositories and each
// repository key stores the ordered list of subscribers. Both lists are
// updated as a pair: when the second write fails the first one is undone.
package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/jmehdipour/repo-digest/internal/keylock"
	"github.com/jmehdipour/repo-digest/internal/model"
	"github.com/jmehdipour/repo-digest/internal/repository"
	"go.uber.org/zap"
)

var (
	ErrNotLinked          = errors.New("not linked")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

type Index struct {
	store repository.Store
	locks *keylock.Locker
	log   *zap.Logger
}

func NewIndex(store repository.Store, log *zap.Logger) *Index {
	if log == nil {
		log = zap.NewNop()
	}
	return &Index{store: store, locks: keylock.New(), log: log}
}

func channelKey(k model.ChannelKey) string { return "channel:" + k.String() }
func repoKey(repo string) string           { return "repo:" + repo }

func storageErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}

// lockPair always takes the channel lock before the repository lock so
// concurrent link/unlink calls cannot deadlock.
func (x *Index) lockPair(k model.ChannelKey, repo string) func() {
	unlockChannel := x.locks.Lock(channelKey(k))
	unlockRepo := x.locks.Lock(repoKey(repo))
	return func() {
		unlockRepo()
		unlockChannel()
	}
}

// Link subscribes the channel to repo. Linking an existing pair is a no-op
// apart from refreshing the stored bot token.
func (x *Index) Link(ctx context.Context, sub model.Subscriber, repo string) error {
	k := sub.Key()
	defer x.lockPair(k, repo)()

	var added bool
	err := x.store.Update(ctx, channelKey(k), func(cur []byte) ([]byte, error) {
		added = false
		repos, err := decode[string](cur)
		if err != nil {
			return nil, err
		}
		if slices.Contains(repos, repo) {
			return nil, nil
		}
		added = true
		return json.Marshal(append(repos, repo))
	})
	if err != nil {
		return storageErr(err)
	}

	err = x.store.Update(ctx, repoKey(repo), func(cur []byte) ([]byte, error) {
		subs, err := decode[model.Subscriber](cur)
		if err != nil {
			return nil, err
		}
		i := slices.IndexFunc(subs, func(s model.Subscriber) bool { return s.Is(k) })
		switch {
		case i < 0:
			subs = append(subs, sub)
		case subs[i].BotToken != sub.BotToken:
			subs[i].BotToken = sub.BotToken
		default:
			return nil, nil
		}
		return json.Marshal(subs)
	})
	if err != nil {
		if added {
			x.undo(ctx, channelKey(k), func(cur []byte) ([]byte, error) {
				return removeValue(cur, repo)
			})
		}
		return storageErr(err)
	}

	x.log.Info("linked", zap.String("channel", k.String()), zap.String("repo", repo), zap.Bool("new", added))
	return nil
}

// Unlink removes the pair from both directions. It returns ErrNotLinked
// without touching storage when repo is not linked to the channel.
func (x *Index) Unlink(ctx context.Context, k model.ChannelKey, repo string) error {
	defer x.lockPair(k, repo)()

	var pos int
	err := x.store.Update(ctx, channelKey(k), func(cur []byte) ([]byte, error) {
		repos, err := decode[string](cur)
		if err != nil {
			return nil, err
		}
		pos = slices.Index(repos, repo)
		if pos < 0 {
			return nil, ErrNotLinked
		}
		return json.Marshal(slices.Delete(repos, pos, pos+1))
	})
	if errors.Is(err, ErrNotLinked) {
		return fmt.Errorf("%s %w", repo, ErrNotLinked)
	}
	if err != nil {
		return storageErr(err)
	}

	err = x.store.Update(ctx, repoKey(repo), func(cur []byte) ([]byte, error) {
		subs, err := decode[model.Subscriber](cur)
		if err != nil {
			return nil, err
		}
		i := slices.IndexFunc(subs, func(s model.Subscriber) bool { return s.Is(k) })
		if i < 0 {
			return nil, nil
		}
		return json.Marshal(slices.Delete(subs, i, i+1))
	})
	if err != nil {
		x.undo(ctx, channelKey(k), func(cur []byte) ([]byte, error) {
			repos, err := decode[string](cur)
			if err != nil || slices.Contains(repos, repo) {
				return nil, err
			}
			return json.Marshal(slices.Insert(repos, min(pos, len(repos)), repo))
		})
		return storageErr(err)
	}

	x.log.Info("unlinked", zap.String("channel", k.String()), zap.String("repo", repo))
	return nil
}

// List returns the repositories linked to the channel in link order.
func (x *Index) List(ctx context.Context, k model.ChannelKey) ([]string, error) {
	repos, err := load[string](ctx, x.store, channelKey(k))
	if err != nil {
		return nil, storageErr(err)
	}
	return repos, nil
}

// Subscribers returns the channels following repo in link order.
func (x *Index) Subscribers(ctx context.Context, repo string) ([]model.Subscriber, error) {
	subs, err := load[model.Subscriber](ctx, x.store, repoKey(repo))
	if err != nil {
		return nil, storageErr(err)
	}
	return subs, nil
}

func (x *Index) undo(ctx context.Context, key string, fn repository.UpdateFunc) {
	if err := x.store.Update(context.WithoutCancel(ctx), key, fn); err != nil {
		x.log.Error("compensating write failed, index may be asymmetric",
			zap.String("key", key), zap.Error(err))
	}
}

func load[T any](ctx context.Context, s repository.Store, key string) ([]T, error) {
	raw, err := s.Get(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return []T{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decode[T](raw)
}

func decode[T any](raw []byte) ([]T, error) {
	out := []T{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

func removeValue(cur []byte, repo string) ([]byte, error) {
	repos, err := decode[string](cur)
	if err != nil {
		return nil, err
	}
	i := slices.Index(repos, repo)
	if i < 0 {
		return nil, nil
	}
	return json.Marshal(slices.Delete(repos, i, i+1))
}
