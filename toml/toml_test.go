// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package toml_test

import (
	"testing"
	"time"

	"github.com/molecula/rdfsail/toml"
	gotoml "github.com/pelletier/go-toml"
)

func TestDuration(t *testing.T) {
	d := toml.Duration(time.Second * 182)
	if got, want := d.String(), "3m2s"; got != want {
		t.Fatalf("String()=%s, want %s", got, want)
	}
	if v, _ := d.MarshalText(); string(v) != "3m2s" {
		t.Fatalf("unexpected text %q", v)
	}
	if v, _ := d.MarshalTOML(); string(v) != `"3m2s"` {
		t.Fatalf("unexpected toml %q", v)
	}

	if err := d.UnmarshalText([]byte("5")); err == nil {
		t.Fatal("expected missing unit error")
	}
	if err := d.UnmarshalText([]byte("1h5s")); err != nil {
		t.Fatal(err)
	} else if time.Duration(d) != time.Hour+5*time.Second {
		t.Fatalf("unexpected duration %s", d)
	}
}

// Ensure a marshalled duration reads back.
func TestDuration_RoundTrip(t *testing.T) {
	type config struct {
		Timeout toml.Duration `toml:"timeout"`
	}
	buf, err := gotoml.Marshal(config{Timeout: toml.Duration(90 * time.Second)})
	if err != nil {
		t.Fatal(err)
	}

	var c config
	if err := gotoml.Unmarshal(buf, &c); err != nil {
		t.Fatalf("unmarshal %q: %v", buf, err)
	} else if time.Duration(c.Timeout) != 90*time.Second {
		t.Fatalf("Timeout=%s", c.Timeout)
	}
}
