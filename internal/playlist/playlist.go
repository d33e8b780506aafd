// Package playlist implements the shared, room-wide playlist: an ordered
// list of filenames, a current-selection index, and an undo buffer that
// survives brief disconnects but not room changes.
package playlist

import (
	"sync"
	"time"
)

// Item is one playlist entry.
type Item struct {
	Filename string
	Duration *float64
}

// Playlist is safe for concurrent use. The zero value is ready to use.
type Playlist struct {
	mu sync.RWMutex

	items        []Item
	currentIndex *int

	queuedIndexFilename *string
	switchToNewItem     bool

	previousPlaylist     []string
	previousPlaylistRoom string
	havePrevious         bool

	lastIndexChange time.Time
	haveLastChange  bool
}

// New returns an empty playlist.
func New() *Playlist { return &Playlist{} }

// Items returns a copy of the current item list.
func (p *Playlist) Items() []Item {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Item, len(p.items))
	copy(out, p.items)
	return out
}

// Filenames returns a copy of just the filenames, in order.
func (p *Playlist) Filenames() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.items))
	for i, it := range p.items {
		out[i] = it.Filename
	}
	return out
}

// CurrentIndex returns the selected index, or ok=false if none.
func (p *Playlist) CurrentIndex() (index int, ok bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.currentIndex == nil {
		return 0, false
	}
	return *p.currentIndex, true
}

// CurrentItem returns the selected item, or ok=false if none.
func (p *Playlist) CurrentItem() (item Item, ok bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.currentIndex == nil || *p.currentIndex >= len(p.items) {
		return Item{}, false
	}
	return p.items[*p.currentIndex], true
}

func (p *Playlist) markChanged() {
	p.lastIndexChange = time.Now()
	p.haveLastChange = true
}

// NotJustChanged reports whether it has been more than thresholdSeconds
// since the current index last changed (used to suppress re-entrant
// advance/restore logic right after a selection).
func (p *Playlist) NotJustChanged(thresholdSeconds float64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.haveLastChange {
		return true
	}
	return time.Since(p.lastIndexChange).Seconds() > thresholdSeconds
}

// MarkSwitchToNewItem arms a one-shot flag that makes the next
// ComputeValidIndex call select a newly appended item.
func (p *Playlist) MarkSwitchToNewItem() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.switchToNewItem = true
}

// SetItems replaces the entire playlist. If index is non-nil it is
// clamped to a valid position; otherwise the first item (if any) is
// selected.
func (p *Playlist) SetItems(filenames []string, index *int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	items := make([]Item, len(filenames))
	for i, f := range filenames {
		items[i] = Item{Filename: f}
	}
	p.items = items

	var next *int
	switch {
	case len(items) == 0:
		next = nil
	case index != nil:
		v := min(max(*index, 0), len(items)-1)
		next = &v
	default:
		v := 0
		next = &v
	}
	if !indexEqual(p.currentIndex, next) {
		p.currentIndex = next
		p.markChanged()
	} else {
		p.currentIndex = next
	}
}

func indexEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// AddItem appends filename. If the playlist was empty, the new item
// becomes current.
func (p *Playlist) AddItem(filename string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = append(p.items, Item{Filename: filename})
	if len(p.items) == 1 {
		v := 0
		p.currentIndex = &v
		p.markChanged()
	}
}

// RemoveItem removes the item at index, adjusting the current selection
// to keep pointing at the same logical item where possible, or clamping to
// the new last index if the current item was removed.
func (p *Playlist) RemoveItem(index int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= len(p.items) {
		return false
	}
	p.items = append(p.items[:index], p.items[index+1:]...)

	if p.currentIndex != nil {
		cur := *p.currentIndex
		switch {
		case cur == index:
			if len(p.items) == 0 {
				p.currentIndex = nil
			} else if cur >= len(p.items) {
				v := len(p.items) - 1
				p.currentIndex = &v
			}
			p.markChanged()
		case cur > index:
			v := cur - 1
			p.currentIndex = &v
		}
	}
	return true
}

// SetCurrentIndex selects index explicitly.
func (p *Playlist) SetCurrentIndex(index int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= len(p.items) {
		return false
	}
	if p.currentIndex == nil || *p.currentIndex != index {
		v := index
		p.currentIndex = &v
		p.markChanged()
	}
	return true
}

// IndexOfFilename returns the index of the first item with the given
// filename, or ok=false.
func (p *Playlist) IndexOfFilename(filename string) (int, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for i, it := range p.items {
		if it.Filename == filename {
			return i, true
		}
	}
	return 0, false
}

// ComputeValidIndex decides which index to select after the server
// announces newItems as the playlist. If MarkSwitchToNewItem was armed,
// it is consumed and len(current items) is returned (selecting whatever
// gets appended at that position). Otherwise it searches forward from the
// current index for a filename present in newItems, then backward
// (preferring the item after a backward match), falling back to 0.
func (p *Playlist) ComputeValidIndex(newItems []string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.switchToNewItem {
		p.switchToNewItem = false
		return len(p.items)
	}

	if p.currentIndex == nil || len(newItems) <= 1 {
		return 0
	}

	currentFilenames := make([]string, len(p.items))
	for i, it := range p.items {
		currentFilenames[i] = it.Filename
	}
	start := *p.currentIndex

	for i := start; i <= len(currentFilenames); i++ {
		if i >= len(currentFilenames) {
			break
		}
		if idx := indexOf(newItems, currentFilenames[i]); idx >= 0 {
			return idx
		}
	}

	for i := start; i > 0; i-- {
		if idx := indexOf(newItems, currentFilenames[i]); idx >= 0 {
			if idx < len(newItems)-1 {
				return idx + 1
			}
			return idx
		}
	}

	return 0
}

func indexOf(list []string, v string) int {
	for i, item := range list {
		if item == v {
			return i
		}
	}
	return -1
}

// Next advances to the next item with no wraparound, returning ok=false at
// the end of the list or on an empty playlist.
func (p *Playlist) Next() (Item, bool) {
	return p.next(false)
}

// NextWithLoop advances to the next item, wrapping to the start when
// loopAtEnd is true and the list is non-empty.
func (p *Playlist) NextWithLoop(loopAtEnd bool) (Item, bool) {
	return p.next(loopAtEnd)
}

func (p *Playlist) next(loopAtEnd bool) (Item, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.items) == 0 {
		return Item{}, false
	}

	var nextIndex int
	switch {
	case p.currentIndex == nil:
		nextIndex = 0
	case *p.currentIndex+1 < len(p.items):
		nextIndex = *p.currentIndex + 1
	case loopAtEnd:
		nextIndex = 0
	default:
		return Item{}, false
	}

	p.currentIndex = &nextIndex
	p.markChanged()
	return p.items[nextIndex], true
}

// Previous moves to the previous item, returning ok=false if already at
// the start or the playlist is empty.
func (p *Playlist) Previous() (Item, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.items) == 0 || p.currentIndex == nil || *p.currentIndex == 0 {
		return Item{}, false
	}
	prev := *p.currentIndex - 1
	p.currentIndex = &prev
	p.markChanged()
	return p.items[prev], true
}

// Clear empties the playlist and resets the queued-index buffer.
func (p *Playlist) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = nil
	p.currentIndex = nil
	p.queuedIndexFilename = nil
	p.markChanged()
}

// Len returns the number of items.
func (p *Playlist) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.items)
}

// IsEmpty reports whether the playlist has no items.
func (p *Playlist) IsEmpty() bool { return p.Len() == 0 }

// Reorder moves the item at fromIndex to toIndex, adjusting the current
// selection to continue pointing at the same logical item.
func (p *Playlist) Reorder(fromIndex, toIndex int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if fromIndex < 0 || fromIndex >= len(p.items) || toIndex < 0 || toIndex >= len(p.items) {
		return false
	}
	if fromIndex == toIndex {
		return true
	}

	item := p.items[fromIndex]
	p.items = append(p.items[:fromIndex], p.items[fromIndex+1:]...)
	p.items = append(p.items[:toIndex], append([]Item{item}, p.items[toIndex:]...)...)

	if p.currentIndex != nil {
		cur := *p.currentIndex
		switch {
		case cur == fromIndex:
			v := toIndex
			p.currentIndex = &v
		case fromIndex < cur && toIndex >= cur:
			v := cur - 1
			p.currentIndex = &v
		case fromIndex > cur && toIndex <= cur:
			v := cur + 1
			p.currentIndex = &v
		}
	}
	p.markChanged()
	return true
}

// UpdatePreviousPlaylist maintains the undo buffer: a buffer captured in a
// different room is discarded; otherwise, if the current items differ
// both from the buffer and from the newly announced items, the current
// items are snapshotted as the new buffer.
func (p *Playlist) UpdatePreviousPlaylist(newItems []string, room string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.havePrevious && p.previousPlaylistRoom != room {
		p.havePrevious = false
		p.previousPlaylist = nil
		p.previousPlaylistRoom = room
		return
	}
	if !p.havePrevious {
		p.previousPlaylistRoom = room
	}

	current := make([]string, len(p.items))
	for i, it := range p.items {
		current[i] = it.Filename
	}

	if stringsEqual(p.previousPlaylist, current) && p.havePrevious {
		return
	}
	if stringsEqual(current, newItems) {
		return
	}
	p.previousPlaylist = current
	p.havePrevious = true
}

// PreviousPlaylist returns the undo buffer, if any.
func (p *Playlist) PreviousPlaylist() ([]string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.havePrevious {
		return nil, false
	}
	out := make([]string, len(p.previousPlaylist))
	copy(out, p.previousPlaylist)
	return out, true
}

// CanUndo reports whether a restorable buffer exists and differs from the
// current playlist.
func (p *Playlist) CanUndo() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.havePrevious {
		return false
	}
	current := make([]string, len(p.items))
	for i, it := range p.items {
		current[i] = it.Filename
	}
	return !stringsEqual(p.previousPlaylist, current)
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
