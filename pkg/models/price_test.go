package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryOutcomeFailed(t *testing.T) {
	assert.False(t, QueryOutcome{Query: "红牛", Results: []Result{{Price: 6}}}.Failed())
	assert.True(t, QueryOutcome{Query: "红牛", FailReason: "rate limited", FailKind: "rate_limited"}.Failed())
}

func TestCrawlRunComplete(t *testing.T) {
	run := &CrawlRun{
		Queries: []ProductQuery{"农夫山泉550ml", "红牛250ml"},
	}
	assert.False(t, run.Complete(), "run without outcomes is incomplete")

	run.Outcomes = []QueryOutcome{
		{Query: "农夫山泉550ml", Results: []Result{{Price: 2.5}}},
	}
	assert.False(t, run.Complete(), "fewer outcomes than queries is incomplete")

	run.Outcomes = append(run.Outcomes, QueryOutcome{
		Query: "红牛250ml", FailReason: "no cards", FailKind: "empty_result",
	})
	assert.True(t, run.Complete())

	run.Outcomes[1] = QueryOutcome{Query: "红牛250ml"}
	assert.False(t, run.Complete(), "a slot with neither results nor failure is invalid")
}

func TestCrawlRunResultCount(t *testing.T) {
	run := &CrawlRun{
		Outcomes: []QueryOutcome{
			{Results: []Result{{Price: 1}, {Price: 2}}},
			{FailReason: "x"},
			{Results: []Result{{Price: 3}}},
		},
	}
	assert.Equal(t, 3, run.ResultCount())
}

func TestLocationByName(t *testing.T) {
	loc, ok := LocationByName("南坪步行街")
	require.True(t, ok)
	assert.Equal(t, "重庆", loc.City)
	assert.NotZero(t, loc.Latitude)

	_, ok = LocationByName("不存在的地点")
	assert.False(t, ok)
}

func TestNavigationGoalDescribe(t *testing.T) {
	loc, _ := LocationByName("南坪步行街")

	assert.Contains(t, SetLocationGoal(loc).Describe(), loc.Address)
	assert.Equal(t, "dismiss_blockers", DismissBlockersGoal().Describe())
	assert.Contains(t, RecoverGoal("rate_limited").Describe(), "rate_limited")
}
