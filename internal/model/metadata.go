package model

import (
	"encoding/json"
	"fmt"
)

// CodeMetadata carries the known descriptive fields of a code document plus any
// additional caller-supplied properties. It marshals to a single flat JSON object.
type CodeMetadata struct {
	FileName    string
	FilePath    string
	ProjectName string
	Tags        []string
	Extra       map[string]interface{}
}

const (
	metaFileName    = "fileName"
	metaFilePath    = "filePath"
	metaProjectName = "projectName"
	metaTags        = "tags"
)

// ToMap flattens the metadata into a plain map. Known fields win over extras.
func (m CodeMetadata) ToMap() map[string]interface{} {
	out := make(map[string]interface{}, len(m.Extra)+4)
	for k, v := range m.Extra {
		out[k] = v
	}
	if m.FileName != "" {
		out[metaFileName] = m.FileName
	}
	if m.FilePath != "" {
		out[metaFilePath] = m.FilePath
	}
	if m.ProjectName != "" {
		out[metaProjectName] = m.ProjectName
	}
	if len(m.Tags) > 0 {
		tags := make([]string, len(m.Tags))
		copy(tags, m.Tags)
		out[metaTags] = tags
	}
	return out
}

// MetadataFromMap splits a flat map into known fields and extras.
// Known keys with the wrong type are rejected.
func MetadataFromMap(in map[string]interface{}) (CodeMetadata, error) {
	var m CodeMetadata
	for k, v := range in {
		switch k {
		case metaFileName, metaFilePath, metaProjectName:
			s, ok := v.(string)
			if !ok {
				return CodeMetadata{}, NewValidationError("metadata."+k, "must be a string")
			}
			switch k {
			case metaFileName:
				m.FileName = s
			case metaFilePath:
				m.FilePath = s
			default:
				m.ProjectName = s
			}
		case metaTags:
			tags, err := toStrings(v)
			if err != nil {
				return CodeMetadata{}, NewValidationError("metadata.tags", err.Error())
			}
			m.Tags = tags
		default:
			if m.Extra == nil {
				m.Extra = make(map[string]interface{})
			}
			m.Extra[k] = v
		}
	}
	return m, nil
}

func toStrings(v interface{}) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return append([]string(nil), t...), nil
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("must be an array of strings")
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("must be an array of strings")
}

func (m CodeMetadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.ToMap())
}

func (m *CodeMetadata) UnmarshalJSON(b []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out, err := MetadataFromMap(raw)
	if err != nil {
		return err
	}
	*m = out
	return nil
}
