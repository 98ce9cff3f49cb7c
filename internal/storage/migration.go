package storage

import "sort"

// Migration is one versioned schema change of a SQL journal backend.
type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
}

// MigrationState reports whether a migration is applied.
type MigrationState struct {
	Migration
	Applied bool
}

// Pending returns the migrations above version, oldest first.
func Pending(migrations []Migration, version int) []Migration {
	var out []Migration
	for _, m := range sorted(migrations) {
		if m.Version > version {
			out = append(out, m)
		}
	}
	return out
}

// Revertible returns the migrations to undo to go from version down to
// target, newest first.
func Revertible(migrations []Migration, version, target int) []Migration {
	all := sorted(migrations)
	var out []Migration
	for i := len(all) - 1; i >= 0; i-- {
		if m := all[i]; m.Version <= version && m.Version > target {
			out = append(out, m)
		}
	}
	return out
}

// States pairs every migration with whether version covers it.
func States(migrations []Migration, version int) []MigrationState {
	all := sorted(migrations)
	out := make([]MigrationState, len(all))
	for i, m := range all {
		out[i] = MigrationState{Migration: m, Applied: m.Version <= version}
	}
	return out
}

func sorted(migrations []Migration) []Migration {
	out := append([]Migration(nil), migrations...)
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out
}
