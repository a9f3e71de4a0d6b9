package server

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/boop-box/boopbox-go/pkg/wire"
)

// Fixtures is the YAML description of a catalog.
//
//	accounts:
//	  - user: box-1
//	    secret: hunter2
//	tags:
//	  - uid: 04a1b2c3d4e5f6
//	    achievements: [0102030405060708090a0b0c0d0e0f1011121314]
//	audio:
//	  - achievement: 0102030405060708090a0b0c0d0e0f1011121314
//	    file: sounds/first-boop.wav
type Fixtures struct {
	Accounts []AccountFixture `yaml:"accounts"`
	Tags     []TagFixture     `yaml:"tags"`
	Audio    []AudioFixture   `yaml:"audio"`
}

// AccountFixture is one account. Exactly one of Secret and SecretHash is set.
type AccountFixture struct {
	User       string `yaml:"user"`
	Secret     string `yaml:"secret,omitempty"`
	SecretHash string `yaml:"secret_hash,omitempty"`
}

// TagFixture assigns achievements to a tag UID (hex).
type TagFixture struct {
	UID          string   `yaml:"uid"`
	Achievements []string `yaml:"achievements"`
}

// AudioFixture names the audio file for an achievement. Relative paths are
// resolved against the fixture file's directory.
type AudioFixture struct {
	Achievement string `yaml:"achievement"`
	File        string `yaml:"file"`
}

// LoadFixtures reads a fixture file.
func LoadFixtures(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixtures %s: %w", path, err)
	}
	return &f, nil
}

// Catalog builds a catalog from the fixtures. baseDir resolves relative
// audio paths.
func (f *Fixtures) Catalog(baseDir string, cost int) (*Catalog, error) {
	c := NewCatalog(cost)

	for _, a := range f.Accounts {
		if a.User == "" {
			return nil, fmt.Errorf("account without user")
		}
		switch {
		case a.SecretHash != "" && a.Secret != "":
			return nil, fmt.Errorf("account %q: secret and secret_hash are exclusive", a.User)
		case a.SecretHash != "":
			if err := c.AddAccountHash(a.User, []byte(a.SecretHash)); err != nil {
				return nil, err
			}
		default:
			if err := c.AddAccount(a.User, a.Secret); err != nil {
				return nil, err
			}
		}
	}

	for _, t := range f.Tags {
		uid, err := wire.ParseUID(t.UID)
		if err != nil {
			return nil, fmt.Errorf("tag %q: %w", t.UID, err)
		}
		ids := make([]wire.AchievementID, 0, len(t.Achievements))
		for _, s := range t.Achievements {
			id, err := wire.ParseAchievementID(s)
			if err != nil {
				return nil, fmt.Errorf("tag %q: %w", t.UID, err)
			}
			ids = append(ids, id)
		}
		c.SetTag(uid, ids...)
	}

	for _, a := range f.Audio {
		id, err := wire.ParseAchievementID(a.Achievement)
		if err != nil {
			return nil, fmt.Errorf("audio %q: %w", a.Achievement, err)
		}
		path := a.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("audio %q: %w", a.Achievement, err)
		}
		c.SetAudio(id, data)
	}

	return c, nil
}

// LoadCatalog reads a fixture file and builds its catalog.
func LoadCatalog(path string, cost int) (*Catalog, error) {
	f, err := LoadFixtures(path)
	if err != nil {
		return nil, err
	}
	return f.Catalog(filepath.Dir(path), cost)
}
