package state

const RootParentKey = "root"

const (
	NodeTypeWorkspace = "workspace"
	NodeTypeFolder    = "folder"
	NodeTypeStudy     = "study"
)

const (
	PresenceActive = "active"
	PresenceIdle   = "idle"
	PresenceAway   = "away"
)

const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

type Session struct {
	UserID string
	Token  string
}

type UIState struct {
	ViewMode string
	PanelTab string
	Theme    string
	Palette  string
	Dialogs  map[string]bool
	Toast    string
}

type Node struct {
	ID       string
	Type     string
	Title    string
	ParentID string
	Meta     map[string]any
}

type Layout struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

type NodesState struct {
	ByID             map[string]Node
	ChildrenByParent map[string][]string
	LayoutByNode     map[string]Layout
	Selected         map[string]struct{}
}

type Study struct {
	ID          string
	Title       string
	Description string
}

type Chapter struct {
	ID   string
	Name string
}

type StudyVersion struct {
	Version   int    `json:"version"`
	Summary   string `json:"summary"`
	CreatedAt string `json:"created_at"`
}

type ActiveStudy struct {
	StudyID   string
	ChapterID string
	Ply       int
}

type StudiesState struct {
	ByID            map[string]Study
	ChaptersByStudy map[string][]Chapter
	VersionsByStudy map[string][]StudyVersion
	Active          ActiveStudy
}

type Thread struct {
	ID        string
	TargetID  string
	AuthorID  string
	Body      string
	CreatedAt string
}

type Reply struct {
	ID        string
	ThreadID  string
	AuthorID  string
	Body      string
	CreatedAt string
}

type DiscussionsState struct {
	ThreadsByTarget map[string][]Thread
	RepliesByThread map[string][]Reply
}

type Notification struct {
	ID      string
	Message string
	Read    bool
}

type NotificationsState struct {
	Items  []Notification
	Unread int
}

type PresenceUser struct {
	UserID    string
	Status    string
	ChapterID string
	MovePath  string
}

type StudyPresence struct {
	Users   []PresenceUser
	Cursors map[string]string
}

type PresenceState struct {
	ByStudyID map[string]StudyPresence
}

type ExportJob struct {
	ID          string
	Status      string
	Progress    int
	DownloadURL string
}

type JobsState struct {
	ExportByID map[string]ExportJob
}

type ACLState struct {
	RolesByNode map[string]string
}

type AppState struct {
	Session       Session
	UI            UIState
	Nodes         NodesState
	Studies       StudiesState
	Discussions   DiscussionsState
	Notifications NotificationsState
	Presence      PresenceState
	Jobs          JobsState
	ACL           ACLState
}

func NewInitialState() *AppState {
	return &AppState{
		UI: UIState{
			ViewMode: "tree",
			PanelTab: "chapters",
			Theme:    "light",
			Palette:  "classic",
			Dialogs:  map[string]bool{},
		},
		Nodes: NodesState{
			ByID:             map[string]Node{},
			ChildrenByParent: map[string][]string{},
			LayoutByNode:     map[string]Layout{},
			Selected:         map[string]struct{}{},
		},
		Studies: StudiesState{
			ByID:            map[string]Study{},
			ChaptersByStudy: map[string][]Chapter{},
			VersionsByStudy: map[string][]StudyVersion{},
		},
		Discussions: DiscussionsState{
			ThreadsByTarget: map[string][]Thread{},
			RepliesByThread: map[string][]Reply{},
		},
		Notifications: NotificationsState{
			Items: []Notification{},
		},
		Presence: PresenceState{
			ByStudyID: map[string]StudyPresence{},
		},
		Jobs: JobsState{
			ExportByID: map[string]ExportJob{},
		},
		ACL: ACLState{
			RolesByNode: map[string]string{},
		},
	}
}
