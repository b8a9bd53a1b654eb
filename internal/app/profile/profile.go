// Package profile persists the local player's identity between runs.
package profile

import (
	"encoding/json"
	"fmt"

	"github.com/quasilyte/gdata"

	"metaverse/internal/app/user"
	"metaverse/internal/pkg/logx"
	"metaverse/internal/pkg/randx"
)

const itemKey = "profile"

// Storage is the subset of gdata.Manager the profile needs.
type Storage interface {
	LoadItem(key string) ([]byte, error)
	SaveItem(key string, data []byte) error
}

// Open returns gdata-backed storage for appName.
func Open(appName string) (Storage, error) {
	m, err := gdata.Open(gdata.Config{AppName: appName})
	if err != nil {
		return nil, fmt.Errorf("open profile storage: %w", err)
	}
	return m, nil
}

type saved struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
}

// Load returns the stored identity, creating and saving a fresh one when none
// exists or the stored one is unusable. A non-empty nickname overrides the
// stored one and is saved.
func Load(s Storage, nickname string) (user.User, error) {
	var u user.User

	data, err := s.LoadItem(itemKey)
	if err != nil {
		logx.Warn("Could not read saved profile", "error", err)
	}
	if len(data) > 0 {
		var p saved
		if err := json.Unmarshal(data, &p); err != nil {
			logx.Warn("Could not parse saved profile", "error", err)
		} else {
			u = user.User{ID: p.ID, Nickname: p.Nickname}
		}
	}

	dirty := false
	if !randx.IsValidClientID(u.ID) {
		u.ID = randx.ClientID()
		dirty = true
	}
	if nickname != "" && nickname != u.Nickname {
		u.Nickname = nickname
		dirty = true
	}
	if u.Nickname == "" {
		generated, err := randx.Nickname()
		if err != nil {
			return u, fmt.Errorf("generate nickname: %w", err)
		}
		u.Nickname = generated
		dirty = true
	}

	if dirty {
		if err := Save(s, u); err != nil {
			return u, err
		}
	}
	return u, nil
}

// Save writes u to storage.
func Save(s Storage, u user.User) error {
	data, err := json.Marshal(saved{ID: u.ID, Nickname: u.Nickname})
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if err := s.SaveItem(itemKey, data); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}
