package convo

import (
	"sync"
	"testing"

	"github.com/fbruhn/sprechzeit/pkg/types"
)

func TestContext_MessageOrder(t *testing.T) {
	c := New()
	c.AddSystemMessage("sys")
	c.AddUserMessage("frage")
	c.AddAssistantMessage("antwort")
	c.AddToolResult("c1", "save_visit_reason", "")

	msgs := c.Messages()
	wantRoles := []string{"system", "user", "assistant", "tool"}
	if len(msgs) != len(wantRoles) {
		t.Fatalf("len(messages) = %d, want %d", len(msgs), len(wantRoles))
	}
	for i, role := range wantRoles {
		if msgs[i].Role != role {
			t.Errorf("messages[%d].Role = %q, want %q", i, msgs[i].Role, role)
		}
	}
	if msgs[3].ToolCallID != "c1" {
		t.Errorf("tool message ToolCallID = %q, want c1", msgs[3].ToolCallID)
	}
	if msgs[3].Name != "save_visit_reason" {
		t.Errorf("tool message Name = %q", msgs[3].Name)
	}
}

func TestContext_MessagesReturnsCopy(t *testing.T) {
	c := New()
	c.AddUserMessage("original")

	msgs := c.Messages()
	msgs[0].Content = "mutated"

	if got := c.Messages()[0].Content; got != "original" {
		t.Fatalf("history content = %q, external mutation leaked in", got)
	}
}

func TestContext_SetToolsReplacesWholesale(t *testing.T) {
	c := New()
	c.SetTools([]types.ToolDefinition{{Name: "a"}, {Name: "b"}})
	c.SetTools([]types.ToolDefinition{{Name: "c"}})

	tools := c.Tools()
	if len(tools) != 1 || tools[0].Name != "c" {
		t.Fatalf("tools = %v, want exactly [c]", tools)
	}
}

func TestContext_SetToolsNilWithdrawsAll(t *testing.T) {
	c := New()
	c.SetTools([]types.ToolDefinition{{Name: "save_visit_reason"}})
	if !c.OffersTool("save_visit_reason") {
		t.Fatal("tool should be offered after SetTools")
	}

	c.SetTools(nil)
	if c.OffersTool("save_visit_reason") {
		t.Fatal("tool still offered after SetTools(nil)")
	}
	if got := len(c.Tools()); got != 0 {
		t.Fatalf("len(tools) = %d, want 0", got)
	}
}

func TestContext_SnapshotConsistency(t *testing.T) {
	c := New()
	c.AddSystemMessage("sys")
	c.SetTools([]types.ToolDefinition{{Name: "t"}})

	msgs, tools := c.Snapshot()
	if len(msgs) != 1 || len(tools) != 1 {
		t.Fatalf("snapshot = %d msgs, %d tools, want 1/1", len(msgs), len(tools))
	}

	// Mutating the snapshot must not affect the context.
	msgs[0].Content = "mutated"
	tools[0].Name = "mutated"
	if c.Messages()[0].Content != "sys" {
		t.Error("message mutation leaked into context")
	}
	if !c.OffersTool("t") {
		t.Error("tool mutation leaked into context")
	}
}

func TestContext_Len(t *testing.T) {
	c := New()
	if c.Len() != 0 {
		t.Fatalf("empty context Len = %d", c.Len())
	}
	c.AddUserMessage("eins")
	c.AddUserMessage("zwei")
	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}
}

func TestContext_ConcurrentAppend(t *testing.T) {
	c := New()
	const writers = 8
	const perWriter = 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				c.AddUserMessage("msg")
			}
		}()
	}
	wg.Wait()

	if got := c.Len(); got != writers*perWriter {
		t.Fatalf("Len = %d, want %d", got, writers*perWriter)
	}
}
