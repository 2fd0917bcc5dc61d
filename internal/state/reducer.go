package state

import (
	"maps"
)

const (
	ActionSessionSet   = "SESSION_SET"
	ActionSessionClear = "SESSION_CLEAR"

	ActionUISetViewMode = "UI_SET_VIEW_MODE"
	ActionUISetPanelTab = "UI_SET_PANEL_TAB"
	ActionUISetTheme    = "UI_SET_THEME"
	ActionUISetDialog   = "UI_SET_DIALOG"
	ActionUISetToast    = "UI_SET_TOAST"

	ActionNodeUpsert      = "NODE_UPSERT"
	ActionNodeRemove      = "NODE_REMOVE"
	ActionNodeMove        = "NODE_MOVE"
	ActionNodeLayoutMerge = "NODE_LAYOUT_MERGE"
	ActionNodeSelect      = "NODE_SELECT"

	ActionStudyUpsert      = "STUDY_UPSERT"
	ActionStudyOpen        = "STUDY_OPEN"
	ActionStudyClose       = "STUDY_CLOSE"
	ActionStudySetChapters = "STUDY_SET_CHAPTERS"
	ActionStudyAddVersion  = "STUDY_ADD_VERSION"

	ActionThreadUpsert = "DISCUSSION_THREAD_UPSERT"
	ActionReplyAppend  = "DISCUSSION_REPLY_APPEND"

	ActionNotificationAdd  = "NOTIFICATION_ADD"
	ActionNotificationRead = "NOTIFICATION_READ"

	ActionPresenceUpsert = "PRESENCE_UPSERT"
	ActionPresenceRemove = "PRESENCE_REMOVE"

	ActionJobExportUpsert = "JOB_EXPORT_UPSERT"

	ActionACLSetRole = "ACL_SET_ROLE"
)

func Reduce(s *AppState, action Action) *AppState {
	p := action.Payload
	switch action.Type {
	case ActionSessionSet:
		next := *s
		next.Session = Session{
			UserID: str(p, "user_id", "userId"),
			Token:  str(p, "token"),
		}
		return &next
	case ActionSessionClear:
		next := *s
		next.Session = Session{}
		return &next

	case ActionUISetViewMode:
		next := *s
		if v, ok := strOK(p, "view_mode", "mode"); ok {
			next.UI.ViewMode = v
		}
		return &next
	case ActionUISetPanelTab:
		next := *s
		if v, ok := strOK(p, "tab", "panel_tab"); ok {
			next.UI.PanelTab = v
		}
		return &next
	case ActionUISetTheme:
		next := *s
		if v, ok := strOK(p, "theme"); ok {
			next.UI.Theme = v
		}
		if v, ok := strOK(p, "palette"); ok {
			next.UI.Palette = v
		}
		return &next
	case ActionUISetDialog:
		name := str(p, "dialog", "name")
		if name == "" {
			return s
		}
		next := *s
		dialogs := maps.Clone(s.UI.Dialogs)
		if dialogs == nil {
			dialogs = map[string]bool{}
		}
		dialogs[name] = boolean(p, "open")
		next.UI.Dialogs = dialogs
		return &next
	case ActionUISetToast:
		next := *s
		next.UI.Toast = str(p, "message", "toast")
		return &next

	case ActionNodeUpsert:
		return reduceNodeUpsert(s, p)
	case ActionNodeRemove:
		return reduceNodeRemove(s, p)
	case ActionNodeMove:
		return reduceNodeMove(s, p)
	case ActionNodeLayoutMerge:
		return reduceLayoutMerge(s, p)
	case ActionNodeSelect:
		next := *s
		selected := map[string]struct{}{}
		for _, id := range strList(p, "ids") {
			selected[id] = struct{}{}
		}
		next.Nodes.Selected = selected
		return &next

	case ActionStudyUpsert:
		id := str(p, "id", "study_id")
		if id == "" {
			return s
		}
		next := *s
		byID := maps.Clone(s.Studies.ByID)
		if byID == nil {
			byID = map[string]Study{}
		}
		study := byID[id]
		study.ID = id
		if v, ok := strOK(p, "title"); ok {
			study.Title = v
		}
		if v, ok := strOK(p, "description"); ok {
			study.Description = v
		}
		byID[id] = study
		next.Studies.ByID = byID
		return &next
	case ActionStudyOpen:
		studyID := str(p, "study_id", "studyId")
		if studyID == "" {
			return s
		}
		next := *s
		next.Studies.Active = ActiveStudy{
			StudyID:   studyID,
			ChapterID: str(p, "chapter_id", "chapterId"),
			Ply:       integer(p, "ply"),
		}
		return &next
	case ActionStudyClose:
		next := *s
		next.Studies.Active = ActiveStudy{}
		return &next
	case ActionStudySetChapters:
		studyID := str(p, "study_id", "studyId")
		if studyID == "" {
			return s
		}
		chapters := []Chapter{}
		for _, entry := range mapList(p, "chapters") {
			chapter := Chapter{ID: str(entry, "id"), Name: str(entry, "name", "title")}
			if chapter.ID != "" {
				chapters = append(chapters, chapter)
			}
		}
		next := *s
		byStudy := maps.Clone(s.Studies.ChaptersByStudy)
		if byStudy == nil {
			byStudy = map[string][]Chapter{}
		}
		byStudy[studyID] = chapters
		next.Studies.ChaptersByStudy = byStudy
		return &next
	case ActionStudyAddVersion:
		studyID := str(p, "study_id", "studyId")
		if studyID == "" {
			return s
		}
		version := StudyVersion{
			Version:   integer(p, "version"),
			Summary:   str(p, "summary"),
			CreatedAt: str(p, "created_at", "createdAt"),
		}
		next := *s
		byStudy := maps.Clone(s.Studies.VersionsByStudy)
		if byStudy == nil {
			byStudy = map[string][]StudyVersion{}
		}
		existing := byStudy[studyID]
		for _, v := range existing {
			if v.Version == version.Version {
				return s
			}
		}
		byStudy[studyID] = append(append([]StudyVersion{}, existing...), version)
		next.Studies.VersionsByStudy = byStudy
		return &next

	case ActionThreadUpsert:
		targetID := str(p, "target_id", "targetId")
		if targetID == "" {
			return s
		}
		thread := Thread{
			ID:        str(p, "id", "thread_id"),
			TargetID:  targetID,
			AuthorID:  str(p, "author_id", "authorId"),
			Body:      str(p, "body"),
			CreatedAt: str(p, "created_at", "createdAt"),
		}
		if thread.ID == "" {
			return s
		}
		next := *s
		byTarget := maps.Clone(s.Discussions.ThreadsByTarget)
		if byTarget == nil {
			byTarget = map[string][]Thread{}
		}
		threads := append([]Thread{}, byTarget[targetID]...)
		replaced := false
		for i, t := range threads {
			if t.ID == thread.ID {
				threads[i] = thread
				replaced = true
				break
			}
		}
		if !replaced {
			threads = append(threads, thread)
		}
		byTarget[targetID] = threads
		next.Discussions.ThreadsByTarget = byTarget
		return &next
	case ActionReplyAppend:
		threadID := str(p, "thread_id", "threadId")
		if threadID == "" {
			return s
		}
		reply := Reply{
			ID:        str(p, "id", "reply_id"),
			ThreadID:  threadID,
			AuthorID:  str(p, "author_id", "authorId"),
			Body:      str(p, "body"),
			CreatedAt: str(p, "created_at", "createdAt"),
		}
		if reply.ID == "" {
			return s
		}
		next := *s
		byThread := maps.Clone(s.Discussions.RepliesByThread)
		if byThread == nil {
			byThread = map[string][]Reply{}
		}
		replies := byThread[threadID]
		for _, r := range replies {
			if r.ID == reply.ID {
				return s
			}
		}
		byThread[threadID] = append(append([]Reply{}, replies...), reply)
		next.Discussions.RepliesByThread = byThread
		return &next

	case ActionNotificationAdd:
		id := str(p, "id", "notification_id")
		if id == "" {
			return s
		}
		for _, n := range s.Notifications.Items {
			if n.ID == id {
				return s
			}
		}
		item := Notification{ID: id, Message: str(p, "message")}
		next := *s
		items := append([]Notification{item}, s.Notifications.Items...)
		next.Notifications = NotificationsState{Items: items, Unread: countUnread(items)}
		return &next
	case ActionNotificationRead:
		id := str(p, "id", "notification_id")
		if id == "" {
			return s
		}
		next := *s
		items := append([]Notification{}, s.Notifications.Items...)
		changed := false
		for i, n := range items {
			if n.ID == id && !n.Read {
				items[i].Read = true
				changed = true
			}
		}
		if !changed {
			return s
		}
		next.Notifications = NotificationsState{Items: items, Unread: countUnread(items)}
		return &next

	case ActionPresenceUpsert:
		studyID := str(p, "study_id", "studyId")
		userID := str(p, "user_id", "userId")
		if studyID == "" || userID == "" {
			return s
		}
		user := PresenceUser{
			UserID:    userID,
			Status:    str(p, "status"),
			ChapterID: str(p, "chapter_id", "chapterId"),
			MovePath:  str(p, "move_path", "movePath"),
		}
		if user.Status == "" {
			user.Status = PresenceActive
		}
		next := *s
		byStudy := maps.Clone(s.Presence.ByStudyID)
		if byStudy == nil {
			byStudy = map[string]StudyPresence{}
		}
		entry := byStudy[studyID]
		users := make([]PresenceUser, 0, len(entry.Users)+1)
		for _, u := range entry.Users {
			if u.UserID != userID {
				users = append(users, u)
			}
		}
		users = append(users, user)
		cursors := maps.Clone(entry.Cursors)
		if cursors == nil {
			cursors = map[string]string{}
		}
		if user.MovePath != "" {
			cursors[userID] = user.MovePath
		}
		byStudy[studyID] = StudyPresence{Users: users, Cursors: cursors}
		next.Presence.ByStudyID = byStudy
		return &next
	case ActionPresenceRemove:
		studyID := str(p, "study_id", "studyId")
		userID := str(p, "user_id", "userId")
		if studyID == "" || userID == "" {
			return s
		}
		entry, ok := s.Presence.ByStudyID[studyID]
		if !ok {
			return s
		}
		next := *s
		byStudy := maps.Clone(s.Presence.ByStudyID)
		users := make([]PresenceUser, 0, len(entry.Users))
		for _, u := range entry.Users {
			if u.UserID != userID {
				users = append(users, u)
			}
		}
		cursors := maps.Clone(entry.Cursors)
		delete(cursors, userID)
		byStudy[studyID] = StudyPresence{Users: users, Cursors: cursors}
		next.Presence.ByStudyID = byStudy
		return &next

	case ActionJobExportUpsert:
		id := str(p, "id", "job_id")
		if id == "" {
			return s
		}
		next := *s
		byID := maps.Clone(s.Jobs.ExportByID)
		if byID == nil {
			byID = map[string]ExportJob{}
		}
		job := byID[id]
		job.ID = id
		if v, ok := strOK(p, "status"); ok {
			job.Status = v
		}
		if job.Status == "" {
			job.Status = JobPending
		}
		if v, ok := intOK(p, "progress"); ok {
			job.Progress = v
		}
		if v, ok := strOK(p, "download_url", "downloadUrl"); ok {
			job.DownloadURL = v
		}
		byID[id] = job
		next.Jobs.ExportByID = byID
		return &next

	case ActionACLSetRole:
		nodeID := str(p, "node_id", "nodeId")
		if nodeID == "" {
			return s
		}
		role := str(p, "role")
		if role == "" {
			role = "viewer"
		}
		next := *s
		roles := maps.Clone(s.ACL.RolesByNode)
		if roles == nil {
			roles = map[string]string{}
		}
		roles[nodeID] = role
		next.ACL.RolesByNode = roles
		return &next
	}
	return s
}

func reduceNodeUpsert(s *AppState, p map[string]any) *AppState {
	id := str(p, "id", "node_id")
	if id == "" {
		return s
	}
	prev, existed := s.Nodes.ByID[id]
	node := prev
	node.ID = id
	if v, ok := strOK(p, "type"); ok {
		node.Type = v
	}
	if v, ok := strOK(p, "title", "name"); ok {
		node.Title = v
	}
	if v, ok := strOK(p, "parent_id", "parentId"); ok {
		node.ParentID = v
	}
	if meta, ok := p["meta"].(map[string]any); ok {
		node.Meta = meta
	}

	next := *s
	byID := maps.Clone(s.Nodes.ByID)
	if byID == nil {
		byID = map[string]Node{}
	}
	byID[id] = node
	next.Nodes.ByID = byID

	children := s.Nodes.ChildrenByParent
	oldKey := ""
	if existed {
		oldKey = parentKey(prev.ParentID)
	}
	newKey := parentKey(node.ParentID)
	if !existed || oldKey != newKey {
		children = maps.Clone(children)
		if children == nil {
			children = map[string][]string{}
		}
		if existed && oldKey != newKey {
			children[oldKey] = removeID(children[oldKey], id)
		}
		children[newKey] = appendIDIfMissing(children[newKey], id)
	}
	next.Nodes.ChildrenByParent = children
	return &next
}

func reduceNodeRemove(s *AppState, p map[string]any) *AppState {
	id := str(p, "id", "node_id")
	if id == "" {
		return s
	}
	prev, existed := s.Nodes.ByID[id]
	if !existed {
		return s
	}
	next := *s
	byID := maps.Clone(s.Nodes.ByID)
	delete(byID, id)
	next.Nodes.ByID = byID

	children := maps.Clone(s.Nodes.ChildrenByParent)
	children[parentKey(prev.ParentID)] = removeID(children[parentKey(prev.ParentID)], id)
	delete(children, id)
	next.Nodes.ChildrenByParent = children

	if _, ok := s.Nodes.LayoutByNode[id]; ok {
		layout := maps.Clone(s.Nodes.LayoutByNode)
		delete(layout, id)
		next.Nodes.LayoutByNode = layout
	}
	if _, ok := s.Nodes.Selected[id]; ok {
		selected := maps.Clone(s.Nodes.Selected)
		delete(selected, id)
		next.Nodes.Selected = selected
	}
	return &next
}

func reduceNodeMove(s *AppState, p map[string]any) *AppState {
	id := str(p, "id", "node_id")
	if id == "" {
		return s
	}
	prev, existed := s.Nodes.ByID[id]
	if !existed {
		return s
	}
	newParent := str(p, "parent_id", "parentId")
	if parentKey(newParent) == parentKey(prev.ParentID) {
		return s
	}
	node := prev
	node.ParentID = newParent

	next := *s
	byID := maps.Clone(s.Nodes.ByID)
	byID[id] = node
	next.Nodes.ByID = byID

	children := maps.Clone(s.Nodes.ChildrenByParent)
	children[parentKey(prev.ParentID)] = removeID(children[parentKey(prev.ParentID)], id)
	children[parentKey(newParent)] = appendIDIfMissing(children[parentKey(newParent)], id)
	next.Nodes.ChildrenByParent = children
	return &next
}

func reduceLayoutMerge(s *AppState, p map[string]any) *AppState {
	layouts, ok := p["layout"].(map[string]any)
	if !ok {
		if layouts, ok = p["layouts"].(map[string]any); !ok {
			return s
		}
	}
	if len(layouts) == 0 {
		return s
	}
	next := *s
	byNode := maps.Clone(s.Nodes.LayoutByNode)
	if byNode == nil {
		byNode = map[string]Layout{}
	}
	for nodeID, raw := range layouts {
		rect, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		byNode[nodeID] = Layout{
			X: number(rect, "x"),
			Y: number(rect, "y"),
			W: number(rect, "w"),
			H: number(rect, "h"),
		}
	}
	next.Nodes.LayoutByNode = byNode
	return &next
}

func parentKey(parentID string) string {
	if parentID == "" {
		return RootParentKey
	}
	return parentID
}

func appendIDIfMissing(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(append([]string{}, ids...), id)
}

func removeID(ids []string, id string) []string {
	result := make([]string, 0, len(ids))
	for _, existing := range ids {
		if existing != id {
			result = append(result, existing)
		}
	}
	return result
}

func countUnread(items []Notification) int {
	count := 0
	for _, n := range items {
		if !n.Read {
			count++
		}
	}
	return count
}

func str(p map[string]any, keys ...string) string {
	value, _ := strOK(p, keys...)
	return value
}

func strOK(p map[string]any, keys ...string) (string, bool) {
	for _, key := range keys {
		if raw, ok := p[key]; ok {
			if value, ok := raw.(string); ok {
				return value, true
			}
		}
	}
	return "", false
}

func boolean(p map[string]any, key string) bool {
	value, _ := p[key].(bool)
	return value
}

func integer(p map[string]any, key string) int {
	value, _ := intOK(p, key)
	return value
}

func intOK(p map[string]any, key string) (int, bool) {
	switch v := p[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

func number(p map[string]any, key string) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func mapList(p map[string]any, key string) []map[string]any {
	raw, ok := p[key].([]any)
	if !ok {
		return nil
	}
	result := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if entry, ok := item.(map[string]any); ok {
			result = append(result, entry)
		}
	}
	return result
}

func strList(p map[string]any, key string) []string {
	switch raw := p[key].(type) {
	case []string:
		return raw
	case []any:
		result := make([]string, 0, len(raw))
		for _, item := range raw {
			if value, ok := item.(string); ok {
				result = append(result, value)
			}
		}
		return result
	}
	return nil
}
