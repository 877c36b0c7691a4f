package editor

// Range bookkeeping across concurrent edits. The fixup observer applies the
// same content-change deltas the editor applied to the document, so tracked
// ranges stay valid without re-parsing.

// AdjustPosition shifts p across a single content change.
//
// Positions before the replaced range are untouched. Positions after it are
// shifted by the change's net line/character delta. Positions inside the
// replaced region collapse to the change's start. When affix is set, a
// position exactly at the change's start moves to the end of the inserted
// text instead of staying put, so a range end expands with insertions at its
// boundary.
func AdjustPosition(p Position, change ContentChange, affix bool) Position {
	start := change.Range.Start
	end := change.Range.End
	newEnd := change.EndPosition()

	switch {
	case ComparePositions(p, start) < 0:
		return p
	case ComparePositions(p, start) == 0:
		if affix && change.Range.IsEmpty() {
			return newEnd
		}
		return p
	case ComparePositions(p, end) < 0:
		// Inside the replaced region.
		return start
	default:
		adjusted := Position{Line: p.Line + newEnd.Line - end.Line, Character: p.Character}
		if p.Line == end.Line {
			adjusted.Character = newEnd.Character + (p.Character - end.Character)
		}
		return adjusted
	}
}

// AdjustRange shifts r across a content change and reports whether the
// change intersected the range's interior (which means tracked text may have
// been modified, not just moved).
func AdjustRange(r Range, change ContentChange) (Range, bool) {
	intersects := RangesOverlap(r, change.Range)
	adjusted := Range{
		Start: AdjustPosition(r.Start, change, false),
		End:   AdjustPosition(r.End, change, true),
	}
	if ComparePositions(adjusted.Start, adjusted.End) > 0 {
		adjusted.End = adjusted.Start
	}
	return adjusted, intersects
}

// AdjustRangeAll folds a batch of content changes over r in event order.
func AdjustRangeAll(r Range, changes []ContentChange) (Range, bool) {
	intersected := false
	for _, c := range changes {
		var hit bool
		r, hit = AdjustRange(r, c)
		intersected = intersected || hit
	}
	return r, intersected
}

// RangesOverlap reports whether a and b share any text. A pure insertion
// (empty b) overlaps only when it lands strictly inside a.
func RangesOverlap(a, b Range) bool {
	if b.IsEmpty() {
		return ComparePositions(b.Start, a.Start) > 0 && ComparePositions(b.Start, a.End) < 0
	}
	if a.IsEmpty() {
		return ComparePositions(a.Start, b.Start) > 0 && ComparePositions(a.Start, b.End) < 0
	}
	return ComparePositions(a.Start, b.End) < 0 && ComparePositions(b.Start, a.End) < 0
}
