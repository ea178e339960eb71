package state

import "testing"

func TestConversationAppendAndLast(t *testing.T) {
	c := NewConversation("s1")
	if _, ok := c.Last(RoleUser); ok {
		t.Fatal("empty conversation has no last message")
	}
	c.Append(User("one"), Assistant("reply"), User("two"))
	if c.Len() != 3 || c.Key() != "s1" {
		t.Fatalf("len = %d key = %q", c.Len(), c.Key())
	}
	if m, ok := c.Last(RoleUser); !ok || m.Content != "two" {
		t.Fatalf("last user = %+v", m)
	}
	if c.UpdatedAt().Before(c.CreatedAt()) {
		t.Fatal("updated before created")
	}
}

func TestMessagesReturnsCopy(t *testing.T) {
	c := NewConversation("s1")
	c.Append(User("one"))
	msgs := c.Messages()
	msgs[0].Content = "changed"
	if got := c.Messages()[0].Content; got != "one" {
		t.Fatalf("history mutated through copy: %q", got)
	}
}
