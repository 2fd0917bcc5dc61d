package realtime

type PresenceHintData struct {
	StudyID   string `json:"study_id"`
	ChapterID string `json:"chapter_id"`
	MovePath  string `json:"move_path"`
}

type PresenceHint struct {
	Type string           `json:"type"`
	Data PresenceHintData `json:"data"`
}

func CursorHint(studyID, chapterID, movePath string) PresenceHint {
	return PresenceHint{
		Type: "presence.cursor_moved",
		Data: PresenceHintData{
			StudyID:   studyID,
			ChapterID: chapterID,
			MovePath:  movePath,
		},
	}
}
