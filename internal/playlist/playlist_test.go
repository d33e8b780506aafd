package playlist_test

import (
	"testing"

	"github.com/watchtogether/syncclient/internal/playlist"
)

func TestSetItemsDefaultsToFirst(t *testing.T) {
	p := playlist.New()
	p.SetItems([]string{"a", "b", "c"}, nil)
	idx, ok := p.CurrentIndex()
	if !ok || idx != 0 {
		t.Fatalf("expected index 0, got %d ok=%v", idx, ok)
	}
}

func TestAddItemSelectsFirstWhenEmpty(t *testing.T) {
	p := playlist.New()
	p.AddItem("only.mkv")
	idx, ok := p.CurrentIndex()
	if !ok || idx != 0 {
		t.Fatalf("expected first item selected, got %d ok=%v", idx, ok)
	}
	p.AddItem("second.mkv")
	idx, _ = p.CurrentIndex()
	if idx != 0 {
		t.Errorf("expected selection to remain at 0 after appending, got %d", idx)
	}
}

func TestNextNoWraparound(t *testing.T) {
	p := playlist.New()
	p.SetItems([]string{"a", "b"}, nil)
	item, ok := p.Next()
	if !ok || item.Filename != "b" {
		t.Fatalf("expected to advance to b, got %+v ok=%v", item, ok)
	}
	if _, ok := p.Next(); ok {
		t.Error("expected no further advance at end of list")
	}
}

func TestNextWithLoopWraps(t *testing.T) {
	p := playlist.New()
	p.SetItems([]string{"a", "b"}, nil)
	p.Next()
	item, ok := p.NextWithLoop(true)
	if !ok || item.Filename != "a" {
		t.Fatalf("expected loop back to a, got %+v ok=%v", item, ok)
	}
}

func TestRemoveItemAdjustsCurrentIndex(t *testing.T) {
	p := playlist.New()
	p.SetItems([]string{"a", "b", "c"}, nil)
	p.SetCurrentIndex(2)
	p.RemoveItem(0)
	idx, ok := p.CurrentIndex()
	if !ok || idx != 1 {
		t.Fatalf("expected current index shifted to 1, got %d ok=%v", idx, ok)
	}
}

func TestRemoveItemClampsWhenCurrentRemoved(t *testing.T) {
	p := playlist.New()
	p.SetItems([]string{"a", "b"}, nil)
	p.SetCurrentIndex(1)
	p.RemoveItem(1)
	idx, ok := p.CurrentIndex()
	if !ok || idx != 0 {
		t.Fatalf("expected clamp to last remaining item, got %d ok=%v", idx, ok)
	}
}

func TestComputeValidIndexFollowsCurrentFile(t *testing.T) {
	p := playlist.New()
	p.SetItems([]string{"a", "b", "c"}, nil)
	p.SetCurrentIndex(1) // "b"

	idx := p.ComputeValidIndex([]string{"x", "b", "y"})
	if idx != 1 {
		t.Errorf("expected to follow 'b' to index 1, got %d", idx)
	}
}

func TestComputeValidIndexMarkSwitchToNewItem(t *testing.T) {
	p := playlist.New()
	p.SetItems([]string{"a", "b"}, nil)
	p.MarkSwitchToNewItem()

	idx := p.ComputeValidIndex([]string{"a", "b", "c"})
	if idx != 2 {
		t.Errorf("expected to select newly appended item at index 2, got %d", idx)
	}
}

func TestReorderAdjustsCurrentIndex(t *testing.T) {
	p := playlist.New()
	p.SetItems([]string{"a", "b", "c"}, nil)
	p.SetCurrentIndex(2) // "c"
	p.Reorder(0, 2)       // move "a" past "c"

	idx, _ := p.CurrentIndex()
	if idx != 1 {
		t.Errorf("expected current index to shift to 1 after reorder, got %d", idx)
	}
	items := p.Filenames()
	if items[idx] != "c" {
		t.Errorf("expected current selection to still be 'c', got %q", items[idx])
	}
}

func TestUpdatePreviousPlaylistDiscardedOnRoomChange(t *testing.T) {
	p := playlist.New()
	p.SetItems([]string{"a", "b"}, nil)
	p.UpdatePreviousPlaylist([]string{"x"}, "room1")
	p.SetItems([]string{"x"}, nil) // apply the announced playlist
	if !p.CanUndo() {
		t.Fatal("expected an undo buffer after first divergent update")
	}

	p.UpdatePreviousPlaylist([]string{"y"}, "room2")
	if p.CanUndo() {
		t.Error("expected undo buffer discarded on room change")
	}
}

func TestNotJustChangedTrueInitially(t *testing.T) {
	p := playlist.New()
	if !p.NotJustChanged(5) {
		t.Error("expected NotJustChanged true before any change has happened")
	}
}

func TestNotJustChangedFalseRightAfterChange(t *testing.T) {
	p := playlist.New()
	p.AddItem("a")
	if p.NotJustChanged(5) {
		t.Error("expected NotJustChanged false immediately after a change")
	}
}
