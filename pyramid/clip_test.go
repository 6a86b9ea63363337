package pyramid

import "testing"

func clippedConfig(c Clip) Config {
	cfg := Config{
		TileSize:        256,
		Format:          ".png",
		Type:            TypeMap,
		Path:            "https://tile.example.org/",
		URLTileTemplate: "{path}{level}/{column}/{row}{format}",
		Clip:            &c,
	}
	return cfg
}

func TestClipOffsetsHalving(t *testing.T) {
	d, err := New(clippedConfig(Clip{MinLevel: 10, MaxLevel: 16, StartCol: 100, StartRow: 64}))
	if err != nil {
		t.Fatal(err)
	}

	off, err := d.Offsets(16)
	if err != nil {
		t.Fatal(err)
	}
	if off.StartCol != 100 || off.StartRow != 64 {
		t.Errorf("level 16: expected start (100,64), got (%d,%d)", off.StartCol, off.StartRow)
	}

	// One level up the start column halves to 50.
	off, err = d.Offsets(15)
	if err != nil {
		t.Fatal(err)
	}
	if off.StartCol != 50 {
		t.Errorf("level 15: expected start col 50, got %d", off.StartCol)
	}
	if off.StartRow != 32 {
		t.Errorf("level 15: expected start row 32, got %d", off.StartRow)
	}
}

func TestClipFractionalOffset(t *testing.T) {
	// Odd start column: halving leaves a half-cell remainder one level up.
	d, err := New(clippedConfig(Clip{MinLevel: 10, MaxLevel: 16, StartCol: 101, StartRow: 64}))
	if err != nil {
		t.Fatal(err)
	}
	off, err := d.Offsets(15)
	if err != nil {
		t.Fatal(err)
	}
	if off.StartCol != 50 {
		t.Errorf("expected integer start col 50, got %d", off.StartCol)
	}
	if off.FracCol != 0.5 {
		t.Errorf("expected fractional col 0.5, got %g", off.FracCol)
	}
	if off.FracRow != 0 {
		t.Errorf("expected fractional row 0, got %g", off.FracRow)
	}
}

func TestClipLevelRange(t *testing.T) {
	d, err := New(clippedConfig(Clip{MinLevel: 10, MaxLevel: 16, StartCol: 0, StartRow: 0}))
	if err != nil {
		t.Fatal(err)
	}
	if d.BaseLevel() != 10 {
		t.Errorf("expected base level 10, got %d", d.BaseLevel())
	}
	if d.MaxLevel() != 16 {
		t.Errorf("expected max level 16, got %d", d.MaxLevel())
	}
	if _, _, err := d.Dimensions(9); err == nil {
		t.Error("expected error below clip range")
	}
}

func TestClipShiftsURL(t *testing.T) {
	d, err := New(clippedConfig(Clip{MinLevel: 10, MaxLevel: 16, StartCol: 100, StartRow: 64}))
	if err != nil {
		t.Fatal(err)
	}
	url, err := d.URLForTile(16, 2, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := "https://tile.example.org/16/102/67.png"
	if url != want {
		t.Errorf("expected %q, got %q", want, url)
	}
}
