package azureuploader

import "testing"

func TestCloseIsSafeWithoutCredential(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}
