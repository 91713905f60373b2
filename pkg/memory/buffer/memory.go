package buffer

import "encoding/json"

// Memories is the question/answer transcript an oracle accumulates. It is the
// oracle state that gets checkpointed with a session.
type Memories struct {
	Items []Memory `json:"memories"`
	Limit int      `json:"-"`
}

type Memory struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func (m *Memories) Add(m2 Memory) {
	m.Items = append(m.Items, m2)
	if m.Limit > 0 && len(m.Items) > m.Limit {
		m.Items = m.Items[len(m.Items)-m.Limit:]
	}
}

func (m *Memories) Last() (Memory, bool) {
	if len(m.Items) == 0 {
		return Memory{}, false
	}
	return m.Items[len(m.Items)-1], true
}

func (m *Memories) Dump() (json.RawMessage, error) {
	return json.Marshal(m)
}

func (m *Memories) Load(raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	var loaded Memories
	if err := json.Unmarshal(raw, &loaded); err != nil {
		return err
	}
	m.Items = loaded.Items
	return nil
}
