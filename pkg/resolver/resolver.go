package resolver

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/karzal/wove/pkg/models"
)

// StartAlias is the reserved reference name for the graph's entry block, so
// users can write <start.input> regardless of what the trigger is called.
const StartAlias = "start"

var referencePattern = regexp.MustCompile(`<([^<>]+)>`)

// Resolver produces concrete parameter values for a block from the current
// execution state. One resolver serves one workflow; it is stateless across
// calls and safe to reuse.
type Resolver struct {
	workflow *models.Workflow
}

func New(workflow *models.Workflow) *Resolver {
	return &Resolver{workflow: workflow}
}

// Resolve substitutes block-output references and environment variables in
// every parameter of the block's config and coerces the results. It fails
// with a typed *Error instead of silently propagating missing values.
func (r *Resolver) Resolve(block *models.Block, execCtx *models.ExecutionContext) (map[string]any, error) {
	resolved := make(map[string]any, len(block.Config.Params))

	for key, value := range block.Config.Params {
		out, err := r.resolveValue(block, execCtx, key, value, isSecretKey(key))
		if err != nil {
			return nil, err
		}

		resolved[key] = out
	}

	return resolved, nil
}

// resolveValue handles one parameter value. Scalars pass through; strings go
// through reference substitution, env substitution and an optional JSON
// parse; objects and arrays recurse per leaf, carrying the secret-key
// classification down from the parent key.
func (r *Resolver) resolveValue(block *models.Block, execCtx *models.ExecutionContext, key string, value any, secretField bool) (any, error) {
	switch v := value.(type) {
	case string:
		return r.resolveString(block, execCtx, v, secretField)
	case map[string]any:
		out := make(map[string]any, len(v))

		for childKey, childVal := range v {
			resolvedChild, err := r.resolveValue(block, execCtx, childKey, childVal, secretField || isSecretKey(childKey))
			if err != nil {
				return nil, err
			}

			out[childKey] = resolvedChild
		}

		return out, nil
	case []any:
		out := make([]any, len(v))

		for i, childVal := range v {
			resolvedChild, err := r.resolveValue(block, execCtx, key, childVal, secretField)
			if err != nil {
				return nil, err
			}

			out[i] = resolvedChild
		}

		return out, nil
	default:
		// nil and non-string scalars pass through unchanged.
		return value, nil
	}
}

func (r *Resolver) resolveString(block *models.Block, execCtx *models.ExecutionContext, value string, secretField bool) (any, error) {
	substituted, err := r.substituteReferences(block, execCtx, value)
	if err != nil {
		return nil, err
	}

	substituted, err = r.substituteEnvVars(block, execCtx, substituted, secretField)
	if err != nil {
		return nil, err
	}

	// An optional parse: strings shaped like JSON become structured values,
	// anything else stays a string.
	trimmed := strings.TrimSpace(substituted)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var parsed any
		if json.Unmarshal([]byte(trimmed), &parsed) == nil {
			return parsed, nil
		}
	}

	return substituted, nil
}

// substituteReferences replaces each <block.path> occurrence independently,
// left to right, non-overlapping.
func (r *Resolver) substituteReferences(block *models.Block, execCtx *models.ExecutionContext, value string) (string, error) {
	matches := referencePattern.FindAllStringSubmatchIndex(value, -1)
	if len(matches) == 0 {
		return value, nil
	}

	var builder strings.Builder

	last := 0

	for _, match := range matches {
		start, end := match[0], match[1]
		path := value[match[2]:match[3]]

		replacement, err := r.resolveReference(block, execCtx, path)
		if err != nil {
			return "", err
		}

		builder.WriteString(value[last:start])
		builder.WriteString(replacement)

		last = end
	}

	builder.WriteString(value[last:])

	return builder.String(), nil
}

// resolveReference resolves a single dot-separated reference path to its
// formatted text.
func (r *Resolver) resolveReference(block *models.Block, execCtx *models.ExecutionContext, path string) (string, error) {
	segments := strings.Split(path, ".")
	head := strings.TrimSpace(segments[0])

	target := r.lookupBlock(head)
	if target == nil {
		return "", newReferenceNotFound(block.ID, head, r.knownBlockNames())
	}

	if !target.Enabled {
		return "", &Error{
			Kind:      KindDependencyDisabled,
			Reference: path,
			BlockID:   block.ID,
			Message:   fmt.Sprintf("block %q is disabled", target.Name()),
		}
	}

	// A block on a branch not taken resolves to empty silently: skipping a
	// branch must not fail everything still referencing it.
	if !execCtx.IsActive(target.ID) {
		return "", nil
	}

	state, ok := execCtx.BlockStates[target.ID]
	if !ok || state == nil {
		// Inside an active loop the output simply is not available yet in
		// this iteration.
		if r.inActiveLoop(target.ID, execCtx) {
			return "", nil
		}

		return "", &Error{
			Kind:      KindMissingBlockState,
			Reference: path,
			BlockID:   block.ID,
			Message:   fmt.Sprintf("block %q has not produced any output", target.Name()),
		}
	}

	rest := segments[1:]

	// <block.output.field> and <block.field> address the same value: a
	// leading "output" segment is an alias for the output root, unless the
	// output really carries an "output" key, in which case the literal
	// reading wins.
	if len(rest) > 0 && rest[0] == "output" {
		if _, shadowed := state.Output["output"]; !shadowed {
			rest = rest[1:]
		}
	}

	resolved, err := walkPath(block.ID, path, state.Output, rest)
	if err != nil {
		return "", err
	}

	return formatValue(resolved, block.Type), nil
}

// lookupBlock applies the resolution order: entry alias, exact id,
// normalized display name.
func (r *Resolver) lookupBlock(name string) *models.Block {
	if models.NormalizeBlockName(name) == StartAlias {
		if trigger := r.workflow.TriggerBlock(); trigger != nil {
			return trigger
		}
	}

	if block := r.workflow.BlockByID(name); block != nil {
		return block
	}

	normalized := models.NormalizeBlockName(name)
	for _, block := range r.workflow.Blocks {
		if block.NormalizedName() == normalized {
			return block
		}
	}

	return nil
}

func (r *Resolver) knownBlockNames() []string {
	names := make([]string, 0, len(r.workflow.Blocks))
	for _, block := range r.workflow.Blocks {
		names = append(names, block.Name())
	}

	sort.Strings(names)

	return names
}

// inActiveLoop reports whether the block belongs to a loop that can still
// iterate.
func (r *Resolver) inActiveLoop(blockID string, execCtx *models.ExecutionContext) bool {
	for loopID, loop := range r.workflow.Loops {
		if loop.Contains(blockID) && execCtx.LoopIterations[loopID] < loop.Iterations {
			return true
		}
	}

	return false
}

// walkPath indexes the remaining dot-separated segments into a block output.
func walkPath(blockID, reference string, output map[string]any, segments []string) (any, error) {
	var current any = output

	for _, segment := range segments {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, &Error{
				Kind:      KindInvalidReferencePath,
				Reference: reference,
				BlockID:   blockID,
				Message:   fmt.Sprintf("segment %q indexes into a non-object value", segment),
			}
		}

		next, exists := obj[segment]
		if !exists {
			return nil, &Error{
				Kind:      KindInvalidReferencePath,
				Reference: reference,
				BlockID:   blockID,
				Message:   fmt.Sprintf("property %q does not exist", segment),
			}
		}

		current = next
	}

	return current, nil
}

// formatValue renders a resolved value as substitution text. Condition
// blocks receive safely-quoted literals so the text can be spliced into a
// boolean expression; function blocks receive JSON-escaped strings so the
// substituted code stays syntactically valid; everything else gets plain
// coercion. Objects and arrays always serialize to JSON.
func formatValue(value any, consumerType string) string {
	switch consumerType {
	case models.BlockTypeCondition:
		return formatForCondition(value)
	case models.BlockTypeFunction:
		if s, ok := value.(string); ok {
			return jsonEncode(s)
		}

		return formatPlain(value)
	default:
		return formatPlain(value)
	}
}

func formatForCondition(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return jsonEncode(v)
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return jsonEncode(v)
	}
}

func formatPlain(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return jsonEncode(v)
	}
}

func jsonEncode(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}

	return string(data)
}
