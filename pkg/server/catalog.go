package server

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/boop-box/boopbox-go/pkg/wire"
)

// ErrUnknownUser is returned by Authenticate for users without an account.
var ErrUnknownUser = errors.New("unknown user")

// Catalog holds the server's accounts, tag assignments and audio.
// It is safe for concurrent use.
type Catalog struct {
	cost int

	mu       sync.RWMutex
	accounts map[string][]byte
	tags     map[wire.UID][]wire.AchievementID
	audio    map[wire.AchievementID][]byte
}

// NewCatalog returns an empty catalog hashing secrets at the given bcrypt
// cost. Zero selects bcrypt.DefaultCost.
func NewCatalog(cost int) *Catalog {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Catalog{
		cost:     cost,
		accounts: make(map[string][]byte),
		tags:     make(map[wire.UID][]wire.AchievementID),
		audio:    make(map[wire.AchievementID][]byte),
	}
}

// AddAccount hashes secret and stores it for user.
func (c *Catalog) AddAccount(user, secret string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), c.cost)
	if err != nil {
		return fmt.Errorf("hash secret for %q: %w", user, err)
	}
	c.mu.Lock()
	c.accounts[user] = hash
	c.mu.Unlock()
	return nil
}

// AddAccountHash stores an existing bcrypt hash for user.
func (c *Catalog) AddAccountHash(user string, hash []byte) error {
	if _, err := bcrypt.Cost(hash); err != nil {
		return fmt.Errorf("account %q: %w", user, err)
	}
	c.mu.Lock()
	c.accounts[user] = append([]byte(nil), hash...)
	c.mu.Unlock()
	return nil
}

// Authenticate checks a user's secret.
func (c *Catalog) Authenticate(user, secret string) error {
	c.mu.RLock()
	hash, ok := c.accounts[user]
	c.mu.RUnlock()
	if !ok {
		return ErrUnknownUser
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(secret))
}

// SetTag assigns achievements to a tag. An empty list registers the tag
// without achievements.
func (c *Catalog) SetTag(uid wire.UID, ids ...wire.AchievementID) {
	c.mu.Lock()
	c.tags[uid] = append([]wire.AchievementID{}, ids...)
	c.mu.Unlock()
}

// Achievements returns the achievements for a tag.
func (c *Catalog) Achievements(uid wire.UID) ([]wire.AchievementID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids, ok := c.tags[uid]
	if !ok {
		return nil, false
	}
	return append([]wire.AchievementID{}, ids...), true
}

// SetAudio stores the audio for an achievement.
func (c *Catalog) SetAudio(id wire.AchievementID, data []byte) {
	c.mu.Lock()
	c.audio[id] = append([]byte{}, data...)
	c.mu.Unlock()
}

// Audio returns the audio for an achievement.
func (c *Catalog) Audio(id wire.AchievementID) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.audio[id]
	return data, ok
}
