package store

import (
	"sort"
	"strings"
	"time"

	"github.com/agentctl/agentctl/internal/errkind"
	"github.com/agentctl/agentctl/internal/journal"
)

func nowMs() int64 { return time.Now().UnixMilli() }

// applyIssueRecord replays one issues.jsonl line into the in-memory
// projection. Invariant violations here are a fatal corrupt-log condition
// (spec §4.1 "Failure semantics") since the writer should never have
// allowed them onto disk.
func (s *Store) applyIssueRecord(line []byte) error {
	rec, err := journal.DecodeJSON[logRecord](line)
	if err != nil {
		return err
	}

	switch rec.Op {
	case "create":
		issue := &Issue{
			ID:        rec.ID,
			Title:     rec.Title,
			Body:      rec.Body,
			Status:    StatusOpen,
			Priority:  derefInt(rec.Priority, 3),
			Tags:      rec.Tags,
			CreatedAt: rec.TsMs,
			UpdatedAt: rec.TsMs,
		}
		s.issues[issue.ID] = issue
		s.issueIdx.add(issue.ID)
	case "update":
		issue, ok := s.issues[rec.ID]
		if !ok {
			return errkind.Newf(errkind.InvalidInput, "update of unknown issue %s", rec.ID)
		}
		if rec.Title != "" {
			issue.Title = rec.Title
		}
		if rec.Body != "" {
			issue.Body = rec.Body
		}
		if rec.Status != "" {
			issue.Status = rec.Status
		}
		if rec.Outcome != "" {
			issue.Outcome = rec.Outcome
		}
		if rec.Priority != nil {
			issue.Priority = *rec.Priority
		}
		if rec.SetTags {
			issue.Tags = rec.Tags
		}
		if rec.ClearOutcome {
			issue.Outcome = ""
		}
		issue.UpdatedAt = rec.TsMs
	case "claim":
		issue, ok := s.issues[rec.ID]
		if !ok {
			return errkind.Newf(errkind.InvalidInput, "claim of unknown issue %s", rec.ID)
		}
		issue.Status = StatusInProgress
		issue.UpdatedAt = rec.TsMs
	case "close":
		issue, ok := s.issues[rec.ID]
		if !ok {
			return errkind.Newf(errkind.InvalidInput, "close of unknown issue %s", rec.ID)
		}
		issue.Status = StatusClosed
		issue.Outcome = rec.Outcome
		issue.UpdatedAt = rec.TsMs
	case "add_dep":
		issue, ok := s.issues[rec.ID]
		if !ok {
			return errkind.Newf(errkind.InvalidInput, "add_dep on unknown issue %s", rec.ID)
		}
		switch rec.DepType {
		case DepBlocks:
			if !containsStr(issue.Blocks, rec.DepDst) {
				issue.Blocks = append(issue.Blocks, rec.DepDst)
			}
		case DepParent:
			issue.Parent = rec.DepDst
		}
		issue.UpdatedAt = rec.TsMs
	case "remove_dep":
		issue, ok := s.issues[rec.ID]
		if !ok {
			return errkind.Newf(errkind.InvalidInput, "remove_dep on unknown issue %s", rec.ID)
		}
		switch rec.DepType {
		case DepBlocks:
			issue.Blocks = removeStr(issue.Blocks, rec.DepDst)
		case DepParent:
			if issue.Parent == rec.DepDst {
				issue.Parent = ""
			}
		}
		issue.UpdatedAt = rec.TsMs
	default:
		return errkind.Newf(errkind.InvalidInput, "unknown issue op %q", rec.Op)
	}
	return nil
}

// CreateOpts carries the optional fields for Create.
type CreateOpts struct {
	Body     string
	Tags     []string
	Priority int
}

// Create appends a create record and returns the materialized issue.
func (s *Store) Create(title string, opts CreateOpts) (*Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(title) == "" {
		return nil, errkind.New(errkind.InvalidInput, "title must not be empty")
	}
	priority := opts.Priority
	if priority == 0 {
		priority = 3
	}
	if priority < 1 || priority > 5 {
		return nil, errkind.Newf(errkind.InvalidInput, "priority %d out of range [1..5]", priority)
	}

	id := newIssueID()
	rec := logRecord{
		Op:       "create",
		TsMs:     nowMs(),
		ID:       id,
		Title:    title,
		Body:     opts.Body,
		Tags:     opts.Tags,
		Priority: &priority,
	}
	if err := s.issuesLog.Append(rec); err != nil {
		return nil, err
	}
	if err := s.applyIssueRecord(journal.MustJSON(rec)); err != nil {
		return nil, err
	}
	return s.issues[id].clone(), nil
}

// Get resolves id (which may be a prefix) and returns the issue, or a
// NotFound/Ambiguous error if it does not resolve to exactly one issue.
func (s *Store) Get(id string) (*Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	full, err := s.resolve(id)
	if err != nil {
		return nil, err
	}
	return s.issues[full].clone(), nil
}

// resolve turns an exact id or unambiguous prefix into a full id.
func (s *Store) resolve(id string) (string, error) {
	if _, ok := s.issues[id]; ok {
		return id, nil
	}
	return s.issueIdx.resolvePrefix(id)
}

// ListFilter narrows List results.
type ListFilter struct {
	Status Status
	Tag    string
}

// List returns issues matching filter, in insertion (creation) order.
func (s *Store) List(filter ListFilter) []*Issue {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Issue
	for _, id := range s.issueIdx.ids {
		issue := s.issues[id]
		if filter.Status != "" && issue.Status != filter.Status {
			continue
		}
		if filter.Tag != "" && !issue.hasTag(filter.Tag) {
			continue
		}
		out = append(out, issue.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out
}

// Children returns the direct children of id.
func (s *Store) Children(id string) ([]*Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	full, err := s.resolve(id)
	if err != nil {
		return nil, err
	}

	var out []*Issue
	for _, cid := range s.issueIdx.ids {
		issue := s.issues[cid]
		if issue.Parent == full {
			out = append(out, issue.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out
}

// SubtreeIDs computes the transitive closure of parent edges pointing at
// rootID, including rootID itself.
func (s *Store) SubtreeIDs(rootID string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	full, err := s.resolve(rootID)
	if err != nil {
		return nil, err
	}

	childrenOf := make(map[string][]string)
	for _, id := range s.issueIdx.ids {
		issue := s.issues[id]
		if issue.Parent != "" {
			childrenOf[issue.Parent] = append(childrenOf[issue.Parent], id)
		}
	}

	out := map[string]bool{full: true}
	queue := []string{full}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range childrenOf[cur] {
			if !out[child] {
				out[child] = true
				queue = append(queue, child)
			}
		}
	}
	return out, nil
}

// ReadyFilter narrows Ready results beyond the base readiness predicate.
type ReadyFilter struct {
	Tags     []string
	Contains string
	Limit    int
}

// Ready returns open, unblocked, leaf-like issues (spec §4.1 "ready"),
// ordered by ascending priority then ascending created_at.
func (s *Store) Ready(rootID string, filter ReadyFilter) ([]*Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var scope map[string]bool
	if rootID != "" {
		full, err := s.resolve(rootID)
		if err != nil {
			return nil, err
		}
		sub, err := s.subtreeIDsLocked(full)
		if err != nil {
			return nil, err
		}
		scope = sub
	}

	openParents := make(map[string]bool)
	blockedByOpen := make(map[string]bool)
	for _, id := range s.issueIdx.ids {
		issue := s.issues[id]
		if issue.Parent != "" && issue.Status == StatusOpen {
			openParents[issue.Parent] = true
		}
		if issue.Status != StatusClosed {
			for _, dst := range issue.Blocks {
				blockedByOpen[dst] = true
			}
		}
	}

	contains := strings.ToLower(filter.Contains)

	var out []*Issue
	for _, id := range s.issueIdx.ids {
		issue := s.issues[id]
		if scope != nil && !scope[id] {
			continue
		}
		if issue.Status != StatusOpen {
			continue
		}
		if blockedByOpen[id] {
			continue
		}
		if openParents[id] {
			continue
		}
		if !hasAllTags(issue, filter.Tags) {
			continue
		}
		if contains != "" && !strings.Contains(strings.ToLower(issue.Title+" "+issue.Body), contains) {
			continue
		}
		out = append(out, issue.clone())
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].CreatedAt < out[j].CreatedAt
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) subtreeIDsLocked(rootID string) (map[string]bool, error) {
	childrenOf := make(map[string][]string)
	for _, id := range s.issueIdx.ids {
		issue := s.issues[id]
		if issue.Parent != "" {
			childrenOf[issue.Parent] = append(childrenOf[issue.Parent], id)
		}
	}
	out := map[string]bool{rootID: true}
	queue := []string{rootID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range childrenOf[cur] {
			if !out[child] {
				out[child] = true
				queue = append(queue, child)
			}
		}
	}
	return out, nil
}

func hasAllTags(issue *Issue, required []string) bool {
	for _, t := range required {
		if !issue.hasTag(t) {
			return false
		}
	}
	return true
}

// Update applies patch to id, re-checking invariants.
func (s *Store) Update(id string, patch Patch) (*Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	full, err := s.resolve(id)
	if err != nil {
		return nil, err
	}

	priority := s.issues[full].Priority
	if patch.Priority != nil {
		priority = *patch.Priority
		if priority < 1 || priority > 5 {
			return nil, errkind.Newf(errkind.InvalidInput, "priority %d out of range [1..5]", priority)
		}
	}

	rec := logRecord{Op: "update", TsMs: nowMs(), ID: full}
	if patch.Title != nil {
		rec.Title = *patch.Title
	}
	if patch.Body != nil {
		rec.Body = *patch.Body
	}
	if patch.Status != nil {
		rec.Status = *patch.Status
	}
	if patch.Outcome != nil {
		rec.Outcome = *patch.Outcome
	}
	if patch.Priority != nil {
		rec.Priority = &priority
	}
	if patch.SetTags {
		rec.SetTags = true
		rec.Tags = patch.Tags
	}

	if err := s.issuesLog.Append(rec); err != nil {
		return nil, err
	}
	if err := s.applyIssueRecord(journal.MustJSON(rec)); err != nil {
		return nil, err
	}
	return s.issues[full].clone(), nil
}

// Claim transitions id from open to in_progress.
func (s *Store) Claim(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	full, err := s.resolve(id)
	if err != nil {
		return err
	}
	if s.issues[full].Status != StatusOpen {
		return errkind.Newf(errkind.InvalidInput, "issue %s is not open", full)
	}

	rec := logRecord{Op: "claim", TsMs: nowMs(), ID: full}
	if err := s.issuesLog.Append(rec); err != nil {
		return err
	}
	return s.applyIssueRecord(journal.MustJSON(rec))
}

// Close transitions id to closed with outcome.
func (s *Store) Close(id string, outcome Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	full, err := s.resolve(id)
	if err != nil {
		return err
	}

	rec := logRecord{Op: "close", TsMs: nowMs(), ID: full, Outcome: outcome}
	if err := s.issuesLog.Append(rec); err != nil {
		return err
	}
	return s.applyIssueRecord(journal.MustJSON(rec))
}

// Reopen resets id (closed or in_progress) back to open, clearing any
// outcome — the "open" verb in spec §3's issue lifecycle.
func (s *Store) Reopen(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	full, err := s.resolve(id)
	if err != nil {
		return err
	}

	rec := logRecord{Op: "update", TsMs: nowMs(), ID: full, Status: StatusOpen, ClearOutcome: true}
	if err := s.issuesLog.Append(rec); err != nil {
		return err
	}
	return s.applyIssueRecord(journal.MustJSON(rec))
}

// AddDep adds a src->dst edge of the given type. Self-edges are rejected,
// new blocks/parent edges that would introduce a cycle in that relation
// are rejected, and the call is idempotent.
func (s *Store) AddDep(src string, depType DepType, dst string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fullSrc, err := s.resolve(src)
	if err != nil {
		return err
	}
	fullDst, err := s.resolve(dst)
	if err != nil {
		return err
	}
	if fullSrc == fullDst {
		return errkind.New(errkind.InvalidInput, "self-edge not allowed")
	}

	if depType == DepBlocks && containsStr(s.issues[fullSrc].Blocks, fullDst) {
		return nil // idempotent
	}
	if depType == DepParent && s.issues[fullSrc].Parent == fullDst {
		return nil
	}

	if s.wouldCycleLocked(fullSrc, depType, fullDst) {
		return errkind.Newf(errkind.InvalidInput, "%s edge %s->%s would create a cycle", depType, fullSrc, fullDst)
	}

	rec := logRecord{Op: "add_dep", TsMs: nowMs(), ID: fullSrc, DepType: depType, DepDst: fullDst}
	if err := s.issuesLog.Append(rec); err != nil {
		return err
	}
	return s.applyIssueRecord(journal.MustJSON(rec))
}

// wouldCycleLocked reports whether adding src->dst would create a cycle in
// the given relation, by checking whether dst can already reach src.
func (s *Store) wouldCycleLocked(src string, depType DepType, dst string) bool {
	visited := map[string]bool{}
	var walk func(string) bool
	walk = func(cur string) bool {
		if cur == src {
			return true
		}
		if visited[cur] {
			return false
		}
		visited[cur] = true
		issue, ok := s.issues[cur]
		if !ok {
			return false
		}
		switch depType {
		case DepBlocks:
			for _, next := range issue.Blocks {
				if walk(next) {
					return true
				}
			}
		case DepParent:
			if issue.Parent != "" && walk(issue.Parent) {
				return true
			}
		}
		return false
	}
	return walk(dst)
}

// RemoveDep removes a src->dst edge, reporting whether one existed.
func (s *Store) RemoveDep(src string, depType DepType, dst string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fullSrc, err := s.resolve(src)
	if err != nil {
		return false, err
	}
	fullDst, err := s.resolve(dst)
	if err != nil {
		return false, err
	}

	existed := false
	switch depType {
	case DepBlocks:
		existed = containsStr(s.issues[fullSrc].Blocks, fullDst)
	case DepParent:
		existed = s.issues[fullSrc].Parent == fullDst
	}
	if !existed {
		return false, nil
	}

	rec := logRecord{Op: "remove_dep", TsMs: nowMs(), ID: fullSrc, DepType: depType, DepDst: fullDst}
	if err := s.issuesLog.Append(rec); err != nil {
		return false, err
	}
	if err := s.applyIssueRecord(journal.MustJSON(rec)); err != nil {
		return false, err
	}
	return true, nil
}

// ResetInProgress reopens every in_progress issue in rootID's subtree and
// returns the ids it reopened (used by resume, spec §4.2).
func (s *Store) ResetInProgress(rootID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	full, err := s.resolve(rootID)
	if err != nil {
		return nil, err
	}
	scope, err := s.subtreeIDsLocked(full)
	if err != nil {
		return nil, err
	}

	var reopened []string
	for id := range scope {
		issue := s.issues[id]
		if issue.Status != StatusInProgress {
			continue
		}
		rec := logRecord{Op: "update", TsMs: nowMs(), ID: id, Status: StatusOpen, ClearOutcome: true}
		if err := s.issuesLog.Append(rec); err != nil {
			return reopened, err
		}
		if err := s.applyIssueRecord(journal.MustJSON(rec)); err != nil {
			return reopened, err
		}
		reopened = append(reopened, id)
	}
	sort.Strings(reopened)
	return reopened, nil
}

// Validation is the result of Validate.
type Validation struct {
	IsFinal bool
	Reason  string
}

// finalOutcomes are the outcomes that count toward a subtree being
// considered fully resolved.
var finalOutcomes = map[Outcome]bool{
	OutcomeSuccess:  true,
	OutcomeSkipped:  true,
	OutcomeExpanded: true,
}

// Validate reports whether every issue in rootID's subtree is closed with
// a final outcome.
func (s *Store) Validate(rootID string) (Validation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	full, err := s.resolve(rootID)
	if err != nil {
		return Validation{}, err
	}
	scope, err := s.subtreeIDsLocked(full)
	if err != nil {
		return Validation{}, err
	}

	for _, id := range s.issueIdx.ids {
		if !scope[id] {
			continue
		}
		issue := s.issues[id]
		if issue.Status != StatusClosed || !finalOutcomes[issue.Outcome] {
			return Validation{IsFinal: false, Reason: "issue " + id + " is not finally closed"}, nil
		}
	}
	return Validation{IsFinal: true, Reason: "all closed"}, nil
}

func derefInt(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func containsStr(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func removeStr(s []string, v string) []string {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
