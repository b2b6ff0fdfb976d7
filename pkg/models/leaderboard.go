package models

import (
	"sort"
	"strings"
)

// Leaderboard maps a lower-cased address to its number of observed intents
type Leaderboard map[string]uint64

// LeaderboardEntry is a single ranked row of the leaderboard
type LeaderboardEntry struct {
	Address string `json:"address"`
	Count   uint64 `json:"count"`
}

// Increment adds by to the entry for addr, creating it if needed
func (lb Leaderboard) Increment(addr string, by uint64) {
	lb[strings.ToLower(addr)] += by
}

// Clone returns an independent copy of the leaderboard
func (lb Leaderboard) Clone() Leaderboard {
	out := make(Leaderboard, len(lb))
	for k, v := range lb {
		out[k] = v
	}
	return out
}

// Total returns the sum of all counts
func (lb Leaderboard) Total() uint64 {
	var total uint64
	for _, v := range lb {
		total += v
	}
	return total
}

// Top returns at most n entries ordered by count descending, then address ascending.
// n <= 0 returns every entry.
func (lb Leaderboard) Top(n int) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, len(lb))
	for addr, count := range lb {
		entries = append(entries, LeaderboardEntry{Address: addr, Count: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Address < entries[j].Address
	})
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries
}
