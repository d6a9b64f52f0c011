package htmldoc

// FormatSnapshot wraps a JSON payload in the snapshot comment.
func FormatSnapshot(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+len(SnapshotMarker)+10)
	out = append(out, "<!-- "+SnapshotMarker+"\n"...)
	out = append(out, payload...)
	return append(out, "\n-->"...)
}

// EmbedSnapshot writes payload into src: in place of an existing snapshot,
// else right after the body start tag, else at the end.
func EmbedSnapshot(src, payload []byte) ([]byte, error) {
	doc := Parse(src)
	comment := FormatSnapshot(payload)
	var e Edit
	switch at, ok := doc.BodyOpenEnd(); {
	case doc.Snapshot != nil:
		e = Edit{Start: doc.Snapshot.Start, End: doc.Snapshot.End, Text: string(comment)}
	case ok:
		e = Edit{Start: at, End: at, Text: "\n" + string(comment) + "\n"}
	default:
		e = Edit{Start: len(src), End: len(src), Text: "\n" + string(comment) + "\n"}
	}
	return Splice(src, []Edit{e})
}

// ExtractSnapshot returns the embedded payload, if any.
func ExtractSnapshot(src []byte) ([]byte, bool) {
	doc := Parse(src)
	if doc.Snapshot == nil {
		return nil, false
	}
	return doc.Snapshot.Payload, true
}
