package config

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	appDirName    = "BingGalleryViewer"
	tempDirName   = "BGVCACHE"
	datastoreFile = "local.sqlite"
	settingsFile  = "config.ini"

	keyUseCache   = "settings.usecache"
	keyUseCacheHD = "settings.usecachehd"
	keyCachePath  = "settings.cachepath"
)

// Settings holds the viewer configuration the acquisition core cares
// about: whether downloaded images are kept in a cache root, whether
// that cache keeps the full-quality copy, and where everything lives
// on disk.
type Settings struct {
	// UseCache enables the persistent cache root; when false only the
	// temp root is used.
	UseCache bool
	// UseCacheHD keeps full-quality copies in the cache root; when
	// false promoted images are downscaled first.
	UseCacheHD bool
	// CachePath is the cache root directory.
	CachePath string
	// TempPath is the ephemeral download root.
	TempPath string
	// DatastorePath is the SQLite metadata database file.
	DatastorePath string

	v    *viper.Viper
	file string
}

// Load reads the settings file under dir (the app's config directory;
// pass "" for the platform default), falling back to defaults for
// anything missing or malformed.
func Load(dir string) (*Settings, error) {
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, errors.Wrap(err, "locating user config directory")
		}
		dir = filepath.Join(base, appDirName)
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(dir, settingsFile))
	v.SetConfigType("ini")
	v.SetDefault(keyUseCache, true)
	v.SetDefault(keyUseCacheHD, false)
	v.SetDefault(keyCachePath, filepath.Join(dir, "Cache"))

	if err := v.ReadInConfig(); err != nil {
		// A missing settings file just means defaults.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(errors.Cause(err)) {
			return nil, errors.Wrap(err, "reading settings file")
		}
	}

	s := &Settings{
		UseCache:      v.GetBool(keyUseCache),
		UseCacheHD:    v.GetBool(keyUseCacheHD),
		CachePath:     v.GetString(keyCachePath),
		TempPath:      filepath.Join(os.TempDir(), tempDirName),
		DatastorePath: filepath.Join(dir, datastoreFile),
		v:             v,
		file:          filepath.Join(dir, settingsFile),
	}
	if s.CachePath == "" {
		s.CachePath = filepath.Join(dir, "Cache")
	}
	return s, nil
}

// Save writes the user-editable settings back to the settings file.
func (s *Settings) Save() error {
	if s.v == nil {
		return errors.New("settings were not loaded from a file")
	}
	s.v.Set(keyUseCache, s.UseCache)
	s.v.Set(keyUseCacheHD, s.UseCacheHD)
	s.v.Set(keyCachePath, s.CachePath)
	if err := os.MkdirAll(filepath.Dir(s.file), 0777); err != nil {
		return errors.Wrap(err, "creating settings directory")
	}
	return errors.Wrap(s.v.WriteConfigAs(s.file), "writing settings file")
}

// EnsureDirs creates the temp and cache roots and the datastore's
// directory if they do not exist yet.
func (s *Settings) EnsureDirs() error {
	for _, dir := range []string{s.TempPath, s.CachePath, filepath.Dir(s.DatastorePath)} {
		if err := os.MkdirAll(dir, 0777); err != nil {
			return errors.Wrapf(err, "creating directory %s", dir)
		}
	}
	return nil
}
