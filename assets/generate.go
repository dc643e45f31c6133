// Package assets holds the files the renderer loads at startup. Compiled
// shaders are not checked in; run go generate with glslc on the PATH.
package assets

//go:generate glslc shaders/shader.vert -o shaders/vert.spv
//go:generate glslc shaders/shader.frag -o shaders/frag.spv
