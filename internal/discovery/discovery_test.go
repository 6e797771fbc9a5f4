package discovery

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeGame(t *testing.T, root string, taskType string, solvable bool, excluded bool) {
	t.Helper()
	dir := root
	if excluded {
		dir = filepath.Join(root, "movable_recep_obj")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	traj, _ := json.Marshal(map[string]string{"task_type": taskType})
	if err := os.WriteFile(filepath.Join(dir, "traj_data.json"), traj, 0644); err != nil {
		t.Fatal(err)
	}
	game, _ := json.Marshal(map[string]bool{"solvable": solvable})
	if err := os.WriteFile(filepath.Join(dir, "game.tw-pddl"), game, 0644); err != nil {
		t.Fatal(err)
	}
}

func TestDiscover_FiltersByTaskTypeAndSolvability(t *testing.T) {
	dataDir := t.TempDir()

	writeGame(t, filepath.Join(dataDir, "trial1"), "pick_and_place_simple", true, false)
	writeGame(t, filepath.Join(dataDir, "trial2"), "look_at_obj_in_light", true, false)
	writeGame(t, filepath.Join(dataDir, "trial3"), "pick_and_place_simple", false, false)
	writeGame(t, filepath.Join(dataDir, "trial4", "movable"), "pick_and_place_simple", true, true)

	cfgYAML := "env:\n  task_types: [1]\ndataset:\n  data_path: " + dataDir + "\n"
	cfgPath := filepath.Join(t.TempDir(), "base_config.yaml")
	if err := os.WriteFile(cfgPath, []byte(cfgYAML), 0644); err != nil {
		t.Fatal(err)
	}

	games, err := Discover(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(games) != 1 {
		t.Fatalf("expected exactly 1 solvable matching game, got %d: %v", len(games), games)
	}
}

func TestDiscover_MissingDataPathReturnsEmpty(t *testing.T) {
	cfgYAML := "env:\n  task_types: [1]\ndataset:\n  data_path: /nonexistent/path/xyz\n"
	cfgPath := filepath.Join(t.TempDir(), "base_config.yaml")
	if err := os.WriteFile(cfgPath, []byte(cfgYAML), 0644); err != nil {
		t.Fatal(err)
	}

	games, err := Discover(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(games) != 0 {
		t.Fatalf("expected no games, got %v", games)
	}
}
