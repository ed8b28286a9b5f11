package model

import (
	"math"
	"strconv"
	"unicode/utf16"
)

// DefaultBusMinCount is the admission threshold for plain bus sessions.
const DefaultBusMinCount = 20

// Dungeon describes a catalog entry used to default session thresholds.
type Dungeon struct {
	Name            string `json:"name"`
	PartySize       uint32 `json:"party_size"`
	BarrackMinCount uint32 `json:"barrack_min_count"`
	MinLevel        uint32 `json:"min_level"` // 0 means no restriction
}

// Dungeons is the static dungeon catalog.
var Dungeons = []Dungeon{
	{Name: "Lore", PartySize: 4, MinLevel: 150},
	{Name: "Sdun", PartySize: 4, MinLevel: 150},
	{Name: "Mecheong", PartySize: 4, MinLevel: 150},
	{Name: "Kii", PartySize: 4, MinLevel: 150},
	{Name: "MeKii", PartySize: 4, BarrackMinCount: 30, MinLevel: 150},
	{Name: "Kino", PartySize: 4, BarrackMinCount: 24, MinLevel: 160},
	{Name: "DarkWeb", PartySize: 2, BarrackMinCount: 20, MinLevel: 150},
	{Name: "Never", PartySize: 4, BarrackMinCount: 15, MinLevel: 160},
	{Name: "FourBeastsNormal", PartySize: 4},
	{Name: "FourBeastsHard", PartySize: 4},
	{Name: "PanNormal", PartySize: 4},
	{Name: "PanHard", PartySize: 4},
	{Name: "Apo", PartySize: 4},
	{Name: "Pad", PartySize: 4},
	{Name: "Kayeongre", PartySize: 4},
	{Name: "FieldParty", PartySize: 4},
	{Name: "Frontier", PartySize: 4},
	{Name: "KaiserDomain", PartySize: 4},
}

// FindDungeon looks a dungeon up by exact name.
func FindDungeon(name string) (Dungeon, bool) {
	for _, d := range Dungeons {
		if d.Name == name {
			return d, true
		}
	}
	return Dungeon{}, false
}

// DefaultMinCount picks the admission threshold for a new session when
// the driver did not supply one.
func DefaultMinCount(postType PostType, dungeonName string) uint32 {
	d, ok := FindDungeon(dungeonName)
	switch postType {
	case PostParty:
		if ok && d.PartySize > 0 {
			return d.PartySize
		}
		return 4
	case PostBarrackBus:
		if ok && d.BarrackMinCount > 0 {
			return d.BarrackMinCount
		}
	}
	return DefaultBusMinCount
}

var anonAdjectives = []string{
	"Shy", "Sleepy", "Excited", "Hungry", "Brave",
	"Bashful", "Relaxed", "Plucky", "Mischievous", "Dapper",
	"Cute", "Confident", "Quiet", "Lively", "Reliable",
	"Speedy", "Polite", "Quirky", "Kind", "Curious",
}

var anonAnimals = []string{
	"Lion", "Panda", "Penguin", "Cat", "Puppy",
	"Rabbit", "Fox", "Bear", "Squirrel", "Owl",
	"Koala", "Otter", "Hamster", "Deer", "Dolphin",
	"Alpaca", "Cheetah", "Turtle", "Parrot", "SeaOtter",
}

// AnonymousName returns the alias shown instead of a driver's nickname.
// The same session always maps to the same alias.
func AnonymousName(sessionID uint64) string {
	var hash int32
	for _, unit := range utf16.Encode([]rune(strconv.FormatUint(sessionID, 10))) {
		hash = (hash << 5) - hash + int32(unit)
	}
	adj := anonAdjectives[absMod(int64(hash), len(anonAdjectives))]
	animal := anonAnimals[absMod(int64(hash>>8), len(anonAnimals))]
	return adj + " " + animal
}

func absMod(v int64, n int) int {
	return int(int64(math.Abs(float64(v))) % int64(n))
}
