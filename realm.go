package go_realmd

import (
	"fmt"

	"github.com/samber/lo"
)

// Realm is one entry of the realm list. Realms are values; the session
// publishes a fresh slice on every poll and never mutates a published one.
type Realm struct {
	ID         uint8
	Name       string
	Address    string
	Type       uint8
	Locked     bool
	Flags      uint8
	Population float32
	Characters uint8
	Category   uint8

	// Version and Build are set only when Flags carries REALM_FLAG_SPECIFY_BUILD.
	Version Version
	Build   uint16
}

// HasBuildInfo reports whether the realm announced its own client build.
func (r Realm) HasBuildInfo() bool {
	return r.Flags&REALM_FLAG_SPECIFY_BUILD != 0
}

// Offline reports whether the realm is marked offline.
func (r Realm) Offline() bool {
	return r.Flags&REALM_FLAG_OFFLINE != 0
}

func (r Realm) String() string {
	return fmt.Sprintf("%s (#%d, %s)", r.Name, r.ID, r.Address)
}

// realmFromEntry converts a decoded realm record.
func realmFromEntry(e *RealmEntry, build *RealmBuildEntry) Realm {
	r := Realm{
		ID:         uint8(e.ID.Uint()),
		Name:       e.Name.Text(),
		Address:    e.Address.Text(),
		Type:       uint8(e.Type.Uint()),
		Locked:     e.Locked.Uint() != 0,
		Flags:      uint8(e.Flags.Uint()),
		Population: e.Population.Float(),
		Characters: uint8(e.Characters.Uint()),
		Category:   uint8(e.Category.Uint()),
	}
	if build != nil {
		r.Version = NewVersion(uint8(build.Major.Uint()), uint8(build.Minor.Uint()), uint8(build.Patch.Uint()))
		r.Build = uint16(build.Build.Uint())
	}
	return r
}

// FindRealm returns the realm with the given id.
func FindRealm(realms []Realm, id uint8) (Realm, bool) {
	return lo.Find(realms, func(r Realm) bool {
		return r.ID == id
	})
}

// OnlineRealms returns the realms not flagged offline.
func OnlineRealms(realms []Realm) []Realm {
	return lo.Filter(realms, func(r Realm, _ int) bool {
		return !r.Offline()
	})
}
