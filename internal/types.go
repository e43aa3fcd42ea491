package internal

const (
	DefaultCompany   = "BNI Member"
	DefaultSpecialty = "General Member"
)

type InputSource string

const (
	SourceUpload     InputSource = "upload"
	SourceSheetSync  InputSource = "sheet_sync"
	SourceEmail      InputSource = "email"
	SourceCLI        InputSource = "cli"
	SourceReferences InputSource = "reference"
)

// Sheet is one tab of a workbook. Cells hold string, float64, bool or nil.
type Sheet struct {
	Name string
	Rows [][]any
}

type Workbook struct {
	Sheets []Sheet
}

type Member struct {
	ID          string   `json:"id" yaml:"id,omitempty"`
	Name        string   `json:"name" yaml:"name"`
	Company     string   `json:"company" yaml:"company"`
	Specialty   string   `json:"specialty" yaml:"specialty"`
	Gives       []string `json:"gives" yaml:"gives,omitempty"`
	Asks        []string `json:"asks" yaml:"asks,omitempty"`
	PhoneNumber string   `json:"phoneNumber" yaml:"phone"`
	Avatar      string   `json:"avatar" yaml:"avatar,omitempty"`
	Email       string   `json:"email" yaml:"email,omitempty"`
	ChapterRole string   `json:"chapterRole,omitempty" yaml:"chapterRole,omitempty"`
}

type MatchSource string

const (
	MatchSourceAI    MatchSource = "ai"
	MatchSourceLocal MatchSource = "local"
)

// SmartMatch pairs one of the target's asks with a candidate's give.
type SmartMatch struct {
	Member      string      `json:"member"`
	Give        string      `json:"give"`
	MatchingAsk string      `json:"matchingAsk"`
	Score       float64     `json:"score"`
	Reason      string      `json:"reason"`
	Source      MatchSource `json:"source,omitempty"`
}

type ImportRow struct {
	ID          string
	Source      string
	Origin      string
	Cleaned     bool
	MemberCount int
	CreatedAt   string
}

const (
	EmailFetched   = "fetched"
	EmailProcessed = "processed"
	EmailSkipped   = "skipped"
	EmailFailed    = "failed"
)

type EmailRow struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}
