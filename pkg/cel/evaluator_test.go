package cel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvaluator(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)
	assert.NotNil(t, eval)
}

func TestValidateExpression(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	tests := []struct {
		name      string
		expr      string
		wantError bool
	}{
		{
			name:      "valid sensor comparison",
			expr:      `sensor_id == "device0"`,
			wantError: false,
		},
		{
			name:      "valid non-bool expression",
			expr:      `size(metrics)`,
			wantError: false,
		},
		{
			name:      "invalid expression",
			expr:      `invalid syntax here!!!`,
			wantError: true,
		},
		{
			name:      "undefined variable",
			expr:      `payload.status == "active"`,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := eval.ValidateExpression(tt.expr)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateFilterExpression(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	tests := []struct {
		name      string
		expr      string
		wantError bool
	}{
		{
			name:      "valid bool expression",
			expr:      `topic.startsWith("sensor/")`,
			wantError: false,
		},
		{
			name:      "non-bool expression",
			expr:      `measures`,
			wantError: true,
		},
		{
			name:      "type mismatch",
			expr:      `measures == "two"`,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := eval.ValidateFilterExpression(tt.expr)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFilterExpressionExamplesCompile(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	for name, expr := range FilterExpressionExamples {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, eval.ValidateFilterExpression(expr))
		})
	}
}

func TestEvaluateFilter(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	ctx := context.Background()
	in := Input{
		SensorID: "lab-device0",
		Topic:    "sensor/building1/lab",
		Metrics:  []string{"temperature", "humidity"},
		Measures: 3,
	}

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{name: "sensor equals", expr: `sensor_id == "lab-device0"`, want: true},
		{name: "sensor not equals", expr: `sensor_id == "device1"`, want: false},
		{name: "sensor prefix", expr: FilterExpressionExamples["sensor_prefix"], want: true},
		{name: "topic prefix", expr: FilterExpressionExamples["topic_match"], want: true},
		{name: "metric present", expr: FilterExpressionExamples["has_metric"], want: true},
		{name: "metric absent", expr: `"pressure" in metrics`, want: false},
		{name: "measure count", expr: FilterExpressionExamples["min_measures"], want: true},
		{name: "combined", expr: FilterExpressionExamples["combined"], want: true},
		{name: "exclusion list", expr: FilterExpressionExamples["exclude_sensors"], want: true},
		{name: "topic regex", expr: FilterExpressionExamples["topic_regex"], want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := eval.EvaluateFilter(ctx, tt.expr, in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateFilter_CompileError(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	_, err = eval.EvaluateFilter(context.Background(), `sensor_id ==`, Input{})
	assert.Error(t, err)
}

func TestFilter_Reuse(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	f, err := eval.NewFilter(`sensor_id.startsWith("lab-")`)
	require.NoError(t, err)
	assert.Equal(t, `sensor_id.startsWith("lab-")`, f.Expression())

	ctx := context.Background()

	ok, err := f.Match(ctx, Input{SensorID: "lab-1"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.Match(ctx, Input{SensorID: "field-1"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFilter_NilMetrics(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	f, err := eval.NewFilter(`size(metrics) == 0`)
	require.NoError(t, err)

	ok, err := f.Match(context.Background(), Input{SensorID: "x"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFilter_RuntimeError(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	f, err := eval.NewFilter(`metrics[5] == "temperature"`)
	require.NoError(t, err)

	_, err = f.Match(context.Background(), Input{Metrics: []string{"temperature"}})
	assert.Error(t, err)
}

func TestCompileExpression(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	program, err := eval.CompileExpression(`size(metrics)`)
	require.NoError(t, err)

	out, _, err := program.Eval(Input{Metrics: []string{"a", "b"}}.vars())
	require.NoError(t, err)
	assert.Equal(t, int64(2), out.Value())
}
