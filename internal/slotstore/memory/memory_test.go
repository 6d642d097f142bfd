package memory_test

import (
	"testing"

	"github.com/Kashuab/openpark/internal/slotstore"
	"github.com/Kashuab/openpark/internal/slotstore/memory"
	"github.com/Kashuab/openpark/internal/slotstore/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) slotstore.SlotStore {
		return memory.New()
	})
}
