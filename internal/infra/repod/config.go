package repod

import (
	"bytes"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/osvaldoandrade/pkgmirror/internal/domain"
)

type managementRepo struct {
	Directory string `toml:"directory"`
}

type syncDBSettings struct {
	DescVersion  int `toml:"desc_version"`
	FilesVersion int `toml:"files_version"`
}

type repository struct {
	Architecture           string         `toml:"architecture"`
	BuildRequirementsExist bool           `toml:"build_requirements_exist"`
	Name                   string         `toml:"name"`
	Debug                  string         `toml:"debug"`
	Staging                string         `toml:"staging"`
	StagingDebug           string         `toml:"staging_debug"`
	Testing                string         `toml:"testing"`
	TestingDebug           string         `toml:"testing_debug"`
	ManagementRepo         managementRepo `toml:"management_repo"`
}

type repodConfig struct {
	Architecture        string         `toml:"architecture"`
	DatabaseCompression string         `toml:"database_compression"`
	SyncDBSettings      syncDBSettings `toml:"syncdb_settings"`
	ManagementRepo      managementRepo `toml:"management_repo"`
	Repositories        []repository   `toml:"repositories"`
}

// renderConfig produces the repod-file configuration importing the channel's
// databases into managementDir.
func renderConfig(channel domain.Channel, managementDir string) ([]byte, error) {
	cfg := repodConfig{
		Architecture:        channel.Architecture,
		DatabaseCompression: "gz",
		SyncDBSettings:      syncDBSettings{DescVersion: 1, FilesVersion: 1},
		ManagementRepo:      managementRepo{Directory: "package"},
		Repositories: []repository{{
			Architecture: channel.Architecture,
			Name:         channel.Name,
			Debug:        channel.Name + "-debug",
			Staging:      channel.Staging(),
			StagingDebug: channel.Staging() + "-debug",
			Testing:      channel.Testing(),
			TestingDebug: channel.Testing() + "-debug",
			ManagementRepo: managementRepo{
				Directory: managementDir,
			},
		}},
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, fmt.Errorf("encode repod config: %w", err)
	}
	return buf.Bytes(), nil
}
