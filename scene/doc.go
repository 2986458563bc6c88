// Package scene models the two external surfaces the windowing core
// drives but does not itself implement: the scene-graph tree (node
// creation, positioning, enable/disable, saved buffers) and the
// swapchain manager that prepares per-output buffers ahead of a KMS
// commit.
//
// Neither rasterizes anything. Tree is a thin adapter interface over
// an external scene-graph library; SwapchainManager wraps the wgpu
// device/surface objects used to stage a batch of output states
// before OutputManager.commit_output_state applies them.
package scene
