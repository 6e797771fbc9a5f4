// Package discovery walks an ALFWorld-style dataset directory tree to find
// solvable game files, the way the original implementation's
// discover_game_files does: every leaf directory that has a traj_data.json
// sidecar and a game.tw-pddl file, excluding any path containing "movable"
// or "Sliced", filtered to the task types configured for the run, and
// requiring the game file to report itself solvable.
//
// This sits outside the core's specified interface boundary — spec.md only
// promises "(config_path) -> list of game file paths" — but a runnable
// gateway needs a concrete implementation of that boundary, so it is
// included here rather than left as an unfillable seam.
package discovery

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ehrlich-b/gatekeeper/internal/taskt"
)

// datasetConfig is the slice of the ALFWorld YAML config this walk needs.
type datasetConfig struct {
	Env struct {
		TaskTypes []int `yaml:"task_types"`
	} `yaml:"env"`
	Dataset struct {
		DataPath        string `yaml:"data_path"`
		EvalIDDataPath  string `yaml:"eval_id_data_path"`
		EvalOODDataPath string `yaml:"eval_ood_data_path"`
	} `yaml:"dataset"`
}

type trajData struct {
	TaskType string `json:"task_type"`
}

type gameData struct {
	Solvable bool `json:"solvable"`
}

// Discover walks the dataset directories named in the ALFWorld config at
// configPath and returns the path of every solvable game file belonging to
// one of the config's configured task types, joined onto the data path as
// the config gives it (after environment-variable expansion).
func Discover(configPath string) ([]string, error) {
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("discovery: read config: %w", err)
	}

	var cfg datasetConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("discovery: parse config: %w", err)
	}

	wantedTypes := make(map[string]bool, len(cfg.Env.TaskTypes))
	for _, id := range cfg.Env.TaskTypes {
		if name, ok := taskt.Types[id]; ok {
			wantedTypes[name] = true
		}
	}

	var dataPaths []string
	for _, p := range []string{cfg.Dataset.DataPath, cfg.Dataset.EvalIDDataPath, cfg.Dataset.EvalOODDataPath} {
		if p != "" {
			dataPaths = append(dataPaths, os.ExpandEnv(p))
		}
	}

	var games []string
	for _, dataPath := range dataPaths {
		found, err := walkDataPath(dataPath, wantedTypes)
		if err != nil {
			return nil, err
		}
		games = append(games, found...)
	}
	return games, nil
}

func walkDataPath(dataPath string, wantedTypes map[string]bool) ([]string, error) {
	info, err := os.Stat(dataPath)
	if err != nil || !info.IsDir() {
		return nil, nil
	}

	var games []string
	err = filepath.WalkDir(dataPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries, matching the original's best-effort walk
		}
		if !d.IsDir() {
			return nil
		}
		if strings.Contains(path, "movable") || strings.Contains(path, "Sliced") {
			return filepath.SkipDir
		}

		trajPath := filepath.Join(path, "traj_data.json")
		if _, err := os.Stat(trajPath); err != nil {
			return nil
		}
		gamePath := filepath.Join(path, "game.tw-pddl")
		if _, err := os.Stat(gamePath); err != nil {
			return nil
		}

		var traj trajData
		trajRaw, err := os.ReadFile(trajPath)
		if err != nil {
			return nil
		}
		if err := json.Unmarshal(trajRaw, &traj); err != nil {
			return nil
		}
		if len(wantedTypes) > 0 && !wantedTypes[traj.TaskType] {
			return nil
		}

		var game gameData
		gameRaw, err := os.ReadFile(gamePath)
		if err != nil {
			return nil
		}
		if err := json.Unmarshal(gameRaw, &game); err != nil || !game.Solvable {
			return nil
		}

		games = append(games, gamePath)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discovery: walk %s: %w", dataPath, err)
	}
	return games, nil
}
