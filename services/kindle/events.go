package kindle

// Event is one entry in the ordered stream a scrape pass emits. The
// wire shape is a tagged union on the "event" field; every payload is
// json-serializable as-is so the API layer can forward events without
// repackaging.
type Event interface {
	Kind() string
}

type StartedEvent struct {
	Event      string `json:"event"`
	TotalBooks int    `json:"total_books"`
	Timestamp  string `json:"timestamp"`
}

func (StartedEvent) Kind() string { return "started" }

// BookProgressEvent is emitted immediately before an item is opened.
type BookProgressEvent struct {
	Event string `json:"event"`
	Index int    `json:"index"`
	Total int    `json:"total"`
	Title string `json:"title"`
	ID    string `json:"id"`
}

func (BookProgressEvent) Kind() string { return "book_progress" }

// BookCompleteEvent is emitted immediately after an item finishes,
// whatever the outcome.
type BookCompleteEvent struct {
	Event   string   `json:"event"`
	Index   int      `json:"index"`
	Total   int      `json:"total"`
	Title   string   `json:"title"`
	ID      string   `json:"id"`
	Percent *float64 `json:"percent,omitempty"`
	Success bool     `json:"success"`
	Error   string   `json:"error,omitempty"`
}

func (BookCompleteEvent) Kind() string { return "book_complete" }

// CompletedEvent is the sole terminal event of a successful pass.
type CompletedEvent struct {
	Event             string   `json:"event"`
	Success           bool     `json:"success"`
	BooksScraped      int      `json:"books_scraped"`
	BooksWithProgress int      `json:"books_with_progress"`
	DurationSeconds   float64  `json:"duration_seconds"`
	Timestamp         string   `json:"timestamp"`
	LicenseLimitBooks []string `json:"license_limit_books,omitempty"`
}

func (CompletedEvent) Kind() string { return "completed" }

// ErrorEvent is the sole terminal event of a failed pass.
type ErrorEvent struct {
	Event       string `json:"event"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

func (ErrorEvent) Kind() string { return "error" }
