package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Inspection
		{
			Name:        "magick_info",
			Description: "Identify an image file with ImageMagick and return its type, bit depth, dimensions, file size in bytes, density and name.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "magick_preview",
			Description: "Render a small PNG preview of an image file so its content can be inspected. Supports PNG, JPEG, GIF, TIFF, BMP and WebP.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
					"max_side": map[string]interface{}{
						"type":        "integer",
						"description": "Longest side of the preview in pixels. Defaults to the server setting (256).",
					},
				},
				"required": []string{"path"},
			},
		},

		// Write operations
		{
			Name:        "magick_convert",
			Description: "Convert an image to another format. The output format follows the destination file extension.",
			InputSchema: writeSchema(nil),
		},
		{
			Name:        "magick_rotate",
			Description: "Rotate an image clockwise by a number of degrees. Uncovered corners are filled with the background colour.",
			InputSchema: writeSchema(map[string]interface{}{
				"degree": map[string]interface{}{
					"type":        "number",
					"description": "Rotation in degrees, clockwise. 0 is allowed.",
				},
			}, "degree"),
		},
		{
			Name:        "magick_resize",
			Description: "Resize an image to fit width x height, keeping the aspect ratio unless told otherwise.",
			InputSchema: writeSchema(mergeProps(sizeProps(), map[string]interface{}{
				"ignoreAspectRatio": map[string]interface{}{
					"type":        "boolean",
					"description": "Stretch to exactly width x height",
				},
				"neverEnlarge": map[string]interface{}{
					"type":        "boolean",
					"description": "Only shrink images larger than the box",
				},
			}), "width"),
		},
		{
			Name:        "magick_crop",
			Description: "Cut a cropwidth x cropheight region out of an image, positioned by gravity and an x/y offset.",
			InputSchema: writeSchema(cropProps(), "cropwidth"),
		},
		{
			Name:        "magick_rescrop",
			Description: "Resize an image and then crop it in one step. With fill the resize covers the box instead of fitting inside it.",
			InputSchema: writeSchema(mergeProps(sizeProps(), cropProps(), map[string]interface{}{
				"fill": map[string]interface{}{
					"type":        "boolean",
					"description": "Resize to cover width x height before cropping",
				},
			}), "width"),
		},
		{
			Name:        "magick_thumbnail",
			Description: "Create a thumbnail that covers width x height and is cropped to it. Metadata is stripped.",
			InputSchema: writeSchema(mergeProps(sizeProps(), map[string]interface{}{
				"gravity": gravityProp(),
				"x":       map[string]interface{}{"type": "integer", "description": "Crop X offset. Default 0"},
				"y":       map[string]interface{}{"type": "integer", "description": "Crop Y offset. Default 0"},
			}), "width"),
		},

		// Raw access and health
		{
			Name:        "magick_exec",
			Description: "Run a raw ImageMagick or GraphicsMagick command line such as `convert in.png -negate out.png` and return its output. No shell is involved; only the image tools may be run. With the GraphicsMagick backend bare tool names run as gm subcommands.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"command": map[string]interface{}{
						"type":        "string",
						"description": "Command line starting with convert, identify, mogrify, composite, montage, compare, magick or gm",
					},
					"timeout": map[string]interface{}{
						"type":        "integer",
						"description": "Timeout in milliseconds. Default 10000",
					},
				},
				"required": []string{"command"},
			},
		},
		{
			Name:        "magick_health",
			Description: "Report which image tool suite is configured and whether it is installed.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}

// writeSchema returns the input schema shared by every operation that writes
// dst, extended with extra properties and required fields.
func writeSchema(extra map[string]interface{}, required ...string) map[string]interface{} {
	props := mergeProps(map[string]interface{}{
		"src": map[string]interface{}{
			"type":        "string",
			"description": "Absolute path to the source image",
		},
		"dst": map[string]interface{}{
			"type":        "string",
			"description": "Absolute path of the file to write. Missing directories are created.",
		},
		"quality": map[string]interface{}{
			"type":        "integer",
			"description": "Output quality, 1-100",
		},
		"background": map[string]interface{}{
			"type":        "string",
			"description": "Background colour, e.g. white, #ffffff, none. Implies flatten.",
		},
		"flatten": map[string]interface{}{
			"type":        "boolean",
			"description": "Merge layers onto the background",
		},
		"autoOrient": map[string]interface{}{
			"type":        "boolean",
			"description": "Rotate according to EXIF orientation",
		},
		"strip": map[string]interface{}{
			"type":        "boolean",
			"description": "Remove profiles and comments",
		},
		"interlace": map[string]interface{}{
			"type":        "string",
			"enum":        []string{"None", "Line", "Plane", "Partition", "JPEG", "GIF", "PNG"},
			"description": "Interlacing scheme",
		},
		"timeout": map[string]interface{}{
			"type":        "integer",
			"description": "Timeout in milliseconds. Default 10000",
		},
		"preview": map[string]interface{}{
			"type":        "boolean",
			"description": "Attach a PNG preview of the written file",
		},
	}, extra)

	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   append([]string{"src", "dst"}, required...),
	}
}

func sizeProps() map[string]interface{} {
	return map[string]interface{}{
		"width": map[string]interface{}{
			"type":        "integer",
			"description": "Target width in pixels",
		},
		"height": map[string]interface{}{
			"type":        "integer",
			"description": "Target height in pixels. Defaults to width",
		},
	}
}

func cropProps() map[string]interface{} {
	return map[string]interface{}{
		"cropwidth": map[string]interface{}{
			"type":        "integer",
			"description": "Width of the cropped region",
		},
		"cropheight": map[string]interface{}{
			"type":        "integer",
			"description": "Height of the cropped region. Defaults to cropwidth (or height for rescrop)",
		},
		"gravity": gravityProp(),
		"x": map[string]interface{}{
			"type":        "integer",
			"description": "X offset from the gravity anchor. Default 0",
		},
		"y": map[string]interface{}{
			"type":        "integer",
			"description": "Y offset from the gravity anchor. Default 0",
		},
	}
}

func gravityProp() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"enum":        []string{"NorthWest", "North", "NorthEast", "West", "Center", "East", "SouthWest", "South", "SouthEast"},
		"description": "Anchor for the crop. Default Center",
	}
}

func mergeProps(maps ...map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
