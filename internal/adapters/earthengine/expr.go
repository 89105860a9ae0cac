package earthengine

import (
	"encoding/json"
	"maps"
	"strconv"
	"sync/atomic"
)

// node is one serialized ValueNode of an Earth Engine expression graph.
type node map[string]any

// Value is a lazily evaluated Earth Engine value. Function definitions it
// refers to travel with it so that any Value can be serialized on its own.
type Value struct {
	node node
	defs map[string]node
}

// Expression is the serialized form sent to the REST API.
type Expression struct {
	Result string          `json:"result"`
	Values map[string]node `json:"values"`
}

var definitionSeq atomic.Uint64

// Constant wraps a JSON-encodable literal.
func Constant(v any) Value {
	return Value{node: node{"constantValue": v}}
}

// Argument refers to a parameter of the enclosing function definition.
func Argument(name string) Value {
	return Value{node: node{"argumentReference": name}}
}

// Invoke calls a server-side algorithm.
func Invoke(function string, args map[string]Value) Value {
	arguments := make(map[string]node, len(args))
	var defs map[string]node
	for name, arg := range args {
		arguments[name] = arg.node
		defs = mergeDefs(defs, arg.defs)
	}
	return Value{
		node: node{"functionInvocationValue": node{
			"functionName": function,
			"arguments":    arguments,
		}},
		defs: defs,
	}
}

// Array builds a list value.
func Array(items ...Value) Value {
	nodes := make([]node, len(items))
	var defs map[string]node
	for i, item := range items {
		nodes[i] = item.node
		defs = mergeDefs(defs, item.defs)
	}
	return Value{node: node{"arrayValue": node{"values": nodes}}, defs: defs}
}

// Lambda defines an anonymous function usable as a map algorithm.
func Lambda(params []string, body Value) Value {
	id := "fn" + strconv.FormatUint(definitionSeq.Add(1), 10)
	defs := mergeDefs(nil, body.defs)
	defs[id] = body.node
	return Value{
		node: node{"functionDefinitionValue": node{
			"argumentNames": params,
			"body":          id,
		}},
		defs: defs,
	}
}

func mergeDefs(dst, src map[string]node) map[string]node {
	if dst == nil {
		dst = make(map[string]node, len(src))
	}
	maps.Copy(dst, src)
	return dst
}

// Expression returns the serializable graph rooted at v.
func (v Value) Expression() Expression {
	values := make(map[string]node, len(v.defs)+1)
	maps.Copy(values, v.defs)
	values["0"] = v.node
	return Expression{Result: "0", Values: values}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Expression())
}

// Image algorithms used to compose products.

func selectBands(image Value, bands ...string) Value {
	return Invoke("Image.select", map[string]Value{
		"input":         image,
		"bandSelectors": Constant(bands),
	})
}

func rename(image Value, names ...string) Value {
	return Invoke("Image.rename", map[string]Value{
		"input": image,
		"names": Constant(names),
	})
}

func imageConstant(v any) Value {
	return Invoke("Image.constant", map[string]Value{"value": Constant(v)})
}

func binary(function string, a, b Value) Value {
	return Invoke(function, map[string]Value{"image1": a, "image2": b})
}

func unary(function string, image Value) Value {
	return Invoke(function, map[string]Value{"value": image})
}
