// Package trainer drives an OpenAI-compatible fine-tuning service that
// implements preference optimization. The DPO loss, quantized loading
// and adapter merge all happen server-side; this package only ships
// data and configuration to them.
package trainer

// DPOConfig tunes the preference-optimization objective.
type DPOConfig struct {
	// Beta scales the implicit reward; lower values let the policy
	// drift further from the reference model.
	Beta            float64 `json:"beta" mapstructure:"beta"`
	Epochs          int     `json:"n_epochs" mapstructure:"epochs"`
	LearningRate    float64 `json:"learning_rate" mapstructure:"learning_rate"`
	BatchSize       int     `json:"batch_size" mapstructure:"batch_size"`
	GradAccumSteps  int     `json:"gradient_accumulation_steps,omitempty" mapstructure:"grad_accum_steps"`
	MaxLength       int     `json:"max_length,omitempty" mapstructure:"max_length"`
	MaxPromptLength int     `json:"max_prompt_length,omitempty" mapstructure:"max_prompt_length"`
	// TruncationSide is "left" or "right". Left keeps the end of the
	// prompt, which is where the turn being judged lives.
	TruncationSide string `json:"truncation_side,omitempty" mapstructure:"truncation_side"`
	WarmupRatio    float64 `json:"warmup_ratio,omitempty" mapstructure:"warmup_ratio"`
	Seed           int     `json:"seed,omitempty" mapstructure:"seed"`
}

// DefaultDPOConfig mirrors the values commonly used for single-GPU LoRA
// DPO runs on 7B-class models.
func DefaultDPOConfig() DPOConfig {
	return DPOConfig{
		Beta:            0.1,
		Epochs:          1,
		LearningRate:    5e-5,
		BatchSize:       4,
		GradAccumSteps:  4,
		MaxLength:       1024,
		MaxPromptLength: 512,
		TruncationSide:  "left",
		WarmupRatio:     0.1,
		Seed:            42,
	}
}

// LoRAConfig describes the adapter layered onto the frozen base model.
type LoRAConfig struct {
	R             int      `json:"r" mapstructure:"r"`
	Alpha         int      `json:"lora_alpha" mapstructure:"alpha"`
	Dropout       float64  `json:"lora_dropout" mapstructure:"dropout"`
	TargetModules []string `json:"target_modules,omitempty" mapstructure:"target_modules"`
	Bias          string   `json:"bias,omitempty" mapstructure:"bias"`
	UseRSLoRA     bool     `json:"use_rslora,omitempty" mapstructure:"use_rslora"`
}

// DefaultLoRAConfig targets the attention and MLP projections, the
// usual choice for Llama/Qwen/Mistral architectures.
func DefaultLoRAConfig() LoRAConfig {
	return LoRAConfig{
		R:       16,
		Alpha:   32,
		Dropout: 0.05,
		TargetModules: []string{
			"q_proj", "k_proj", "v_proj", "o_proj",
			"gate_proj", "up_proj", "down_proj",
		},
		Bias: "none",
	}
}

// QuantConfig controls how the server loads the base model.
type QuantConfig struct {
	LoadIn4Bit      bool   `json:"load_in_4bit" mapstructure:"load_in_4bit"`
	QuantType       string `json:"bnb_4bit_quant_type,omitempty" mapstructure:"quant_type"`
	ComputeDtype    string `json:"bnb_4bit_compute_dtype,omitempty" mapstructure:"compute_dtype"`
	UseDoubleQuant  bool   `json:"bnb_4bit_use_double_quant,omitempty" mapstructure:"use_double_quant"`
	TrustRemoteCode bool   `json:"trust_remote_code,omitempty" mapstructure:"trust_remote_code"`
}

// DefaultQuantConfig is 4-bit NF4 with bf16 compute, the standard
// QLoRA-style loadout.
func DefaultQuantConfig() QuantConfig {
	return QuantConfig{
		LoadIn4Bit:     true,
		QuantType:      "nf4",
		ComputeDtype:   "bfloat16",
		UseDoubleQuant: true,
	}
}

// TuningProfile bundles everything the server needs beyond the standard
// fine-tuning request. Registered ahead of job creation via the vendor
// extension endpoint.
type TuningProfile struct {
	Name      string      `json:"name"`
	BaseModel string      `json:"base_model"`
	DPO       DPOConfig   `json:"dpo"`
	LoRA      LoRAConfig  `json:"lora"`
	Quant     QuantConfig `json:"quantization"`
	// HubToken authenticates gated base-model downloads. Passed
	// explicitly rather than read from the server's environment.
	HubToken string `json:"hub_token,omitempty"`
}

// Validate returns warnings for suspicious values. Warnings do not block
// a run; a fatal misconfiguration surfaces server-side anyway.
func (p *TuningProfile) Validate() []string {
	var warnings []string
	if p.BaseModel == "" {
		warnings = append(warnings, "base_model is empty")
	}
	if p.DPO.Beta <= 0 {
		warnings = append(warnings, "dpo beta should be positive")
	}
	if p.DPO.LearningRate > 1e-3 {
		warnings = append(warnings, "learning rate above 1e-3 will likely destroy the adapter")
	}
	if p.LoRA.R > 0 && p.LoRA.Alpha < p.LoRA.R {
		warnings = append(warnings, "lora alpha below rank is unusual")
	}
	if p.DPO.MaxPromptLength > p.DPO.MaxLength {
		warnings = append(warnings, "max_prompt_length exceeds max_length")
	}
	return warnings
}
