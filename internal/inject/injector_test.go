package inject

import (
	"testing"

	"main/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"
)

func TestInjectorFiresOnceThenDisarms(t *testing.T) {
	in, err := New([]Rule{{SourceID: "coins", Stage: StageLoad}})
	require.NoError(t, err)

	err = in.Check("coins", StageLoad)
	assert.True(t, errors.Is(err, exception.ErrInjectedFailure))

	assert.NoError(t, in.Check("coins", StageLoad))
}

func TestInjectorAfterBatches(t *testing.T) {
	in, err := New([]Rule{{SourceID: "feed", Stage: StageExtract, AfterBatches: 2}})
	require.NoError(t, err)

	assert.NoError(t, in.Check("feed", StageExtract))
	assert.NoError(t, in.Check("feed", StageExtract))
	assert.Error(t, in.Check("feed", StageExtract))
	assert.NoError(t, in.Check("feed", StageExtract))
}

func TestInjectorIgnoresOtherTargets(t *testing.T) {
	in, err := New([]Rule{{SourceID: "coins", Stage: StageLoad}})
	require.NoError(t, err)

	assert.NoError(t, in.Check("coins", StageExtract))
	assert.NoError(t, in.Check("feed", StageLoad))
}

func TestNilInjectorInjectsNothing(t *testing.T) {
	var in *Injector
	assert.NoError(t, in.Check("coins", StageLoad))
}

func TestRuleValidation(t *testing.T) {
	testcases := []struct {
		desc string
		rule Rule
	}{
		{"missing source", Rule{Stage: StageLoad}},
		{"unknown stage", Rule{SourceID: "coins", Stage: "parse"}},
		{"negative afterBatches", Rule{SourceID: "coins", Stage: StageLoad, AfterBatches: -1}},
	}

	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := New([]Rule{tc.rule})
			assert.Error(t, err)
		})
	}
}
