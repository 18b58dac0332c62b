package protocol

import "testing"

func TestClassifyMapping(t *testing.T) {
	cases := []struct {
		tag      MessageTag
		reliable bool
		ordered  bool
		priority uint8
	}{
		{TagConnect, true, true, PriorityControl},
		{TagConnectResponse, true, true, PriorityControl},
		{TagDisconnect, true, true, PriorityControl},
		{TagAttack, true, true, PriorityHigh},
		{TagSkill, true, true, PriorityHigh},
		{TagError, true, true, PriorityHigh},
		{TagDie, true, true, PriorityCritical},
		{TagRespawn, true, true, PriorityCritical},
		{TagRespawnComplete, true, true, PriorityCritical},
		{TagStateUpdate, true, false, PriorityState},
		{TagMove, false, false, PriorityMove},
		{TagMoveUpdate, false, false, PriorityMove},
	}

	for _, tc := range cases {
		got := Classify(tc.tag)
		if got.Reliable != tc.reliable || got.Ordered != tc.ordered || got.Priority != tc.priority {
			t.Errorf("Classify(%v) = %+v, want reliable=%v ordered=%v priority=%d",
				tc.tag, got, tc.reliable, tc.ordered, tc.priority)
		}
	}
}

// 死亡复活类消息必须排在移动前面
func TestClassifyPriorityOrdering(t *testing.T) {
	if Classify(TagDie).Priority >= Classify(TagStateUpdate).Priority {
		t.Error("death must outrank state updates")
	}
	if Classify(TagStateUpdate).Priority >= Classify(TagMove).Priority {
		t.Error("state updates must outrank movement")
	}
}
