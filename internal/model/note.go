package model

// NoteField indexes the three embedded text fields of a note.
type NoteField int

const (
	NoteFieldTitle NoteField = iota
	NoteFieldSnippet
	NoteFieldComment
)

// NoteFieldCount is the number of embedded fields; vectors are always ordered title, snippet, comment.
const NoteFieldCount = 3

var noteFieldNames = [NoteFieldCount]string{"title", "snippet", "comment"}

func (f NoteField) String() string {
	if f < 0 || int(f) >= NoteFieldCount {
		return "unknown"
	}
	return noteFieldNames[f]
}

type Note struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	Title         string        `json:"title"`
	Snippet       string        `json:"snippet"`
	Comment       string        `json:"comment"`
	URL           string        `json:"url"`
	TitleVector   []float32     `json:"-"`
	SnippetVector []float32     `json:"-"`
	CommentVector []float32     `json:"-"`
	Related       []NoteSummary `json:"related,omitempty"`
	RelatedMtime  int64         `json:"related_mtime"`
	State         int           `json:"state"`
	Ctime         int64         `json:"ctime"`
	Mtime         int64         `json:"mtime"`
}

// Text returns the text of the given field.
func (n *Note) Text(f NoteField) string {
	switch f {
	case NoteFieldTitle:
		return n.Title
	case NoteFieldSnippet:
		return n.Snippet
	case NoteFieldComment:
		return n.Comment
	}
	return ""
}

// Vector returns the stored embedding of the given field.
func (n *Note) Vector(f NoteField) []float32 {
	switch f {
	case NoteFieldTitle:
		return n.TitleVector
	case NoteFieldSnippet:
		return n.SnippetVector
	case NoteFieldComment:
		return n.CommentVector
	}
	return nil
}

func (n *Note) SetVector(f NoteField, v []float32) {
	switch f {
	case NoteFieldTitle:
		n.TitleVector = v
	case NoteFieldSnippet:
		n.SnippetVector = v
	case NoteFieldComment:
		n.CommentVector = v
	}
}

// HasText reports whether any embedded field carries text.
func (n *Note) HasText() bool {
	return n.Title != "" || n.Snippet != "" || n.Comment != ""
}

// NoteVectors holds the resolved embeddings of a note in field order.
type NoteVectors [NoteFieldCount][]float32

// Slice returns the vectors as a query set for the ranker.
func (v NoteVectors) Slice() [][]float32 {
	return [][]float32{v[NoteFieldTitle], v[NoteFieldSnippet], v[NoteFieldComment]}
}

type NoteSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}
