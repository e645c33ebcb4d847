package go_realmd

import "testing"

func testRealms() []Realm {
	return []Realm{
		{ID: 1, Name: "Icecrown", Address: "127.0.0.1:8085"},
		{ID: 2, Name: "Lordaeron", Address: "127.0.0.1:8086", Flags: REALM_FLAG_OFFLINE},
		{ID: 7, Name: "Frostmourne", Address: "10.1.1.7:8085", Flags: REALM_FLAG_SPECIFY_BUILD | REALM_FLAG_RECOMMENDED},
	}
}

// TestFindRealm tests lookup by realm id.
func TestFindRealm(t *testing.T) {
	realms := testRealms()
	r, ok := FindRealm(realms, 7)
	if !ok || r.Name != "Frostmourne" {
		t.Errorf("FindRealm(7) = %v, %v", r, ok)
	}
	if _, ok := FindRealm(realms, 3); ok {
		t.Error("FindRealm(3) found a realm")
	}
	if _, ok := FindRealm(nil, 1); ok {
		t.Error("FindRealm on an empty list found a realm")
	}
}

// TestOnlineRealms tests filtering of offline realms.
func TestOnlineRealms(t *testing.T) {
	online := OnlineRealms(testRealms())
	if len(online) != 2 {
		t.Fatalf("got %d online realms, want 2", len(online))
	}
	for _, r := range online {
		if r.Offline() {
			t.Errorf("%s is offline", r)
		}
	}
}

// TestRealmFromEntry tests conversion of decoded realm records.
func TestRealmFromEntry(t *testing.T) {
	e := NewRealmEntry()
	e.Type.SetUint(1)
	e.Locked.SetUint(1)
	e.Flags.SetUint(uint64(REALM_FLAG_SPECIFY_BUILD))
	e.Name.SetString("Icecrown")
	e.Address.SetString("192.168.0.2:8085")
	e.Population.SetFloat(1.5)
	e.Characters.SetUint(3)
	e.Category.SetUint(1)
	e.ID.SetUint(9)

	b := NewRealmBuildEntry()
	b.Major.SetUint(3)
	b.Minor.SetUint(3)
	b.Patch.SetUint(5)
	b.Build.SetUint(12340)

	r := realmFromEntry(e, b)
	if r.ID != 9 || r.Name != "Icecrown" || r.Address != "192.168.0.2:8085" {
		t.Errorf("realm = %+v", r)
	}
	if !r.Locked || r.Type != 1 || r.Characters != 3 || r.Population != 1.5 {
		t.Errorf("realm = %+v", r)
	}
	if !r.HasBuildInfo() || r.Build != 12340 || r.Version.String() != "3.3.5" {
		t.Errorf("build info = %v %s %d", r.HasBuildInfo(), r.Version, r.Build)
	}
	if got := r.String(); got != "Icecrown (#9, 192.168.0.2:8085)" {
		t.Errorf("String() = %q", got)
	}

	plain := realmFromEntry(e, nil)
	if plain.Build != 0 {
		t.Errorf("Build = %d without a build record", plain.Build)
	}
}
