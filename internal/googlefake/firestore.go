package googlefake

import (
	"encoding/json"
	"net/http"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/firestore-auth/dto"
	"github.com/jrsteele09/firestore-auth/token/jwt"
)

// authorized accepts service account tokens for Firestore and ID tokens
func (s *Server) authorized(r *http.Request) bool {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" {
		return false
	}
	if claims, ok := s.verifyAccountToken(token); ok {
		return slices.Contains(claims.Audience, jwt.AudienceFirestore)
	}
	_, ok := s.verifyIDToken(token)
	return ok
}

func (s *Server) handleFirestore(w http.ResponseWriter, r *http.Request) {
	root := "/v1/projects/" + s.ProjectID + "/databases/(default)/documents"
	p := r.URL.Path

	if p == root+":runQuery" {
		if s.begin(w, r, EndpointRunQuery) {
			return
		}
		if !s.authorized(r) {
			writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Request had invalid authentication credentials.")
			return
		}
		s.runQuery(w, r)
		return
	}

	if !strings.HasPrefix(p, root+"/") {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "unknown database "+p)
		return
	}
	rel := strings.Trim(strings.TrimPrefix(p, root+"/"), "/")
	isDocument := len(strings.Split(rel, "/"))%2 == 0

	var endpoint string
	switch {
	case r.Method == http.MethodGet && isDocument:
		endpoint = EndpointGet
	case r.Method == http.MethodGet:
		endpoint = EndpointList
	case r.Method == http.MethodDelete && isDocument:
		endpoint = EndpointDelete
	case (r.Method == http.MethodPatch && isDocument) || (r.Method == http.MethodPost && !isDocument):
		endpoint = EndpointWrite
	default:
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", r.Method+" not allowed on "+rel)
		return
	}

	if s.begin(w, r, endpoint) {
		return
	}
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Request had invalid authentication credentials.")
		return
	}

	switch endpoint {
	case EndpointGet:
		s.getDocument(w, rel)
	case EndpointList:
		s.listDocuments(w, r, rel)
	case EndpointDelete:
		s.deleteDocument(w, r, rel)
	case EndpointWrite:
		if r.Method == http.MethodPost {
			rel = rel + "/" + strings.ReplaceAll(uuid.New().String(), "-", "")[:20]
		}
		s.writeDocument(w, r, rel)
	}
}

func (s *Server) getDocument(w http.ResponseWriter, rel string) {
	doc, ok := s.Document(rel)
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Document \""+s.documentName(rel)+"\" not found.")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request, collection string) {
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	offset := 0
	if token := r.URL.Query().Get("pageToken"); token != "" {
		n, err := strconv.Atoi(token)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid page token")
			return
		}
		offset = n
	}

	s.lock.RLock()
	var paths []string
	for path := range s.documents {
		if strings.HasPrefix(path, collection+"/") && !strings.Contains(strings.TrimPrefix(path, collection+"/"), "/") {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)

	end := len(paths)
	if pageSize > 0 && offset+pageSize < end {
		end = offset + pageSize
	}
	resp := dto.ListDocumentsResponse{}
	for _, path := range paths[min(offset, len(paths)):end] {
		resp.Documents = append(resp.Documents, s.documents[path])
	}
	s.lock.RUnlock()

	if end < len(paths) {
		resp.NextPageToken = strconv.Itoa(end)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request, rel string) {
	s.lock.Lock()
	_, ok := s.documents[rel]
	if !ok && r.URL.Query().Get("currentDocument.exists") == "true" {
		s.lock.Unlock()
		writeError(w, http.StatusNotFound, "NOT_FOUND", "No document to update: "+s.documentName(rel))
		return
	}
	delete(s.documents, rel)
	s.lock.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{})
}

func (s *Server) writeDocument(w http.ResponseWriter, r *http.Request, rel string) {
	var body dto.Document
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}

	q := r.URL.Query()
	var mask []string
	for _, fp := range q["updateMask.fieldPaths"] {
		field, ok := parseFieldPath(fp)
		if !ok {
			writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "Invalid property path \""+fp+"\".")
			return
		}
		mask = append(mask, field)
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	now := s.now().UTC().Format(time.RFC3339Nano)
	existing, exists := s.documents[rel]
	if !exists && q.Get("currentDocument.exists") == "true" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "No document to update: "+s.documentName(rel))
		return
	}

	doc := dto.Document{
		Name:       s.documentName(rel),
		Fields:     body.Fields,
		CreateTime: now,
		UpdateTime: now,
	}
	if exists {
		doc.CreateTime = existing.CreateTime
	}
	if exists && len(mask) > 0 {
		merged := make(map[string]dto.Value, len(existing.Fields))
		for k, v := range existing.Fields {
			merged[k] = v
		}
		for _, field := range mask {
			if v, ok := body.Fields[field]; ok {
				merged[field] = v
			} else {
				delete(merged, field)
			}
		}
		doc.Fields = merged
	}

	s.documents[rel] = doc
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) runQuery(w http.ResponseWriter, r *http.Request) {
	var req dto.RunQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}
	if len(req.StructuredQuery.From) != 1 {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "exactly one collection selector is supported")
		return
	}
	collection := req.StructuredQuery.From[0].CollectionID

	s.lock.RLock()
	readTime := s.now().UTC().Format(time.RFC3339Nano)
	var paths []string
	for path := range s.documents {
		parts := strings.Split(path, "/")
		if len(parts) == 2 && parts[0] == collection {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)

	resp := []dto.RunQueryResponse{}
	for _, path := range paths {
		doc := s.documents[path]
		if where := req.StructuredQuery.Where; where != nil && where.FieldFilter != nil && !matches(doc, *where.FieldFilter) {
			continue
		}
		d := doc
		resp = append(resp, dto.RunQueryResponse{Document: &d, ReadTime: readTime})
	}
	s.lock.RUnlock()

	if len(resp) == 0 {
		resp = append(resp, dto.RunQueryResponse{ReadTime: readTime})
	}
	writeJSON(w, http.StatusOK, resp)
}

func matches(doc dto.Document, f dto.FieldFilter) bool {
	v, ok := doc.Fields[f.Field.FieldPath]
	if !ok {
		return false
	}

	if f.Op == dto.OperatorArrayContains {
		if v.ArrayValue == nil {
			return false
		}
		for _, elem := range v.ArrayValue.Values {
			if c, ok := compare(elem, f.Value); ok && c == 0 {
				return true
			}
		}
		return false
	}

	c, ok := compare(v, f.Value)
	if !ok {
		return f.Op == dto.OperatorNotEqual
	}
	switch f.Op {
	case dto.OperatorEqual:
		return c == 0
	case dto.OperatorNotEqual:
		return c != 0
	case dto.OperatorLessThan:
		return c < 0
	case dto.OperatorLessThanOrEqual:
		return c <= 0
	case dto.OperatorGreaterThan:
		return c > 0
	case dto.OperatorGreaterThanOrEqual:
		return c >= 0
	}
	return false
}

// compare orders two scalar values of the same kind
func compare(a, b dto.Value) (int, bool) {
	if x, ok := number(a); ok {
		y, ok := number(b)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	}
	switch {
	case a.StringValue != nil && b.StringValue != nil:
		return strings.Compare(*a.StringValue, *b.StringValue), true
	case a.TimestampValue != nil && b.TimestampValue != nil:
		return strings.Compare(*a.TimestampValue, *b.TimestampValue), true
	case a.BooleanValue != nil && b.BooleanValue != nil:
		if *a.BooleanValue == *b.BooleanValue {
			return 0, true
		}
		if !*a.BooleanValue {
			return -1, true
		}
		return 1, true
	case a.NullValue != nil && b.NullValue != nil:
		return 0, true
	}
	return 0, false
}

func number(v dto.Value) (float64, bool) {
	switch {
	case v.IntegerValue != nil:
		n, err := strconv.ParseInt(*v.IntegerValue, 10, 64)
		return float64(n), err == nil
	case v.DoubleValue != nil:
		return *v.DoubleValue, true
	}
	return 0, false
}

var simpleFieldPath = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z_0-9]*$`)

// parseFieldPath accepts a single segment field path, either a simple name or
// a backtick quoted one
func parseFieldPath(fp string) (string, bool) {
	if simpleFieldPath.MatchString(fp) {
		return fp, true
	}
	if len(fp) < 2 || fp[0] != '`' || fp[len(fp)-1] != '`' {
		return "", false
	}

	var b strings.Builder
	inner := fp[1 : len(fp)-1]
	for i := 0; i < len(inner); i++ {
		switch inner[i] {
		case '\\':
			if i+1 == len(inner) {
				return "", false
			}
			i++
			b.WriteByte(inner[i])
		case '`':
			return "", false
		default:
			b.WriteByte(inner[i])
		}
	}
	return b.String(), true
}
